package handler

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/pkg/apperr"
	"github.com/qs3c/guild_server/internal/pkg/response"
)

// content_id 为外部系统的标识，只允许安全字符
var contentIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

var registerOnce sync.Once

// RegisterValidators 注册自定义校验标签：content_type、content_id、reaction_kind
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		// 错误信息使用 json/form 字段名
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})

		_ = v.RegisterValidation("content_type", func(fl validator.FieldLevel) bool {
			_, err := model.ParseContentType(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("content_id", func(fl validator.FieldLevel) bool {
			return contentIDPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("reaction_kind", func(fl validator.FieldLevel) bool {
			_, err := model.ParseReactionKind(fl.Field().String())
			return err == nil
		})
	})
}

// bindError 绑定失败统一按参数错误返回
func bindError(c *gin.Context, err error) {
	message := "Invalid request"

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", fe.Field())
		case "content_id":
			message = "content_id must be 1-128 characters of letters, digits, '.', '_' or '-'"
		default:
			message = fmt.Sprintf("Invalid %s", fe.Field())
		}
	}

	response.FromError(c, apperr.Wrap(apperr.BadRequest, message, err))
}
