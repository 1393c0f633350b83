// Package validation registers the custom binding tags used by request structs.
package validation

import (
	"errors"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/policy"
)

var (
	once    sync.Once
	slugRe  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	regErrs []error
)

// Register installs the custom tags on gin's validator. Safe to call more than once.
func Register() error {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			regErrs = append(regErrs, errors.New("validation: gin validator engine is not validator/v10"))
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		for tag, fn := range rules() {
			if err := v.RegisterValidation(tag, fn); err != nil {
				regErrs = append(regErrs, err)
			}
		}
	})
	return errors.Join(regErrs...)
}

func rules() map[string]validator.Func {
	return map[string]validator.Func{
		// role accepts user, teacher or admin; guest is never assignable
		"role": func(fl validator.FieldLevel) bool {
			_, ok := policy.ParseRole(fl.Field().String())
			return ok
		},
		"post_status": func(fl validator.FieldLevel) bool {
			return models.PostStatus(fl.Field().String()).Valid()
		},
		"contact_status": func(fl validator.FieldLevel) bool {
			return models.ContactStatus(fl.Field().String()).Valid()
		},
		"attachable": func(fl validator.FieldLevel) bool {
			_, ok := models.ParseAttachableKind(fl.Field().String())
			return ok
		},
		"attachment_type": func(fl validator.FieldLevel) bool {
			return models.AttachmentType(fl.Field().String()).Valid()
		},
		"source_type": func(fl validator.FieldLevel) bool {
			s := models.SourceType(fl.Field().String())
			return s == models.SourceManual || s == models.SourceLink
		},
		"slug": func(fl validator.FieldLevel) bool {
			return slugRe.MatchString(fl.Field().String())
		},
		// weburl is an absolute http(s) URL, safe to redirect to or link
		"weburl": func(fl validator.FieldLevel) bool {
			u, err := url.Parse(fl.Field().String())
			if err != nil || u.Host == "" {
				return false
			}
			return u.Scheme == "http" || u.Scheme == "https"
		},
	}
}

// FieldErrors flattens binding errors to field -> failed rule. Errors that
// are not validation errors (bad JSON) map to the "body" field.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out[fe.Field()] = fe.Tag()
		}
		return out
	}
	if err != nil {
		out["body"] = "invalid"
	}
	return out
}
