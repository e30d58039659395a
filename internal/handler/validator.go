package handler

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// Trans 全局翻译器，HandleParamError 使用
var Trans ut.Translator

// 自定义校验规则
const tagChatKind = "chat_kind"

// chatKindMessages 自定义规则的提示，按语言区分
var chatKindMessages = map[string]string{
	"zh": "{0}只能是basic或channel",
	"en": "{0} must be basic or channel",
}

// InitTrans 初始化校验器与翻译器，locale 为 "zh" 或 "en"
func InitTrans(locale string) error {
	if binding.Validator == nil {
		v := validator.New()
		v.SetTagName("binding")
		binding.Validator = &defaultValidator{validator: v}
	}
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}

	// 错误信息里使用 json 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation(tagChatKind, validateChatKind); err != nil {
		return err
	}

	enT := en.New()
	uni := ut.New(enT, zh.New(), enT)
	trans, found := uni.GetTranslator(locale)
	if !found {
		return fmt.Errorf("uni.GetTranslator(%s) failed", locale)
	}
	Trans = trans

	var err error
	msg := chatKindMessages["en"]
	switch locale {
	case "zh":
		err = zh_translations.RegisterDefaultTranslations(v, Trans)
		msg = chatKindMessages["zh"]
	default:
		err = en_translations.RegisterDefaultTranslations(v, Trans)
	}
	if err != nil {
		return err
	}
	return v.RegisterTranslation(tagChatKind, Trans,
		func(ut ut.Translator) error {
			return ut.Add(tagChatKind, msg, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tagChatKind, fe.Field())
			return t
		},
	)
}

// validateChatKind 空值交给 omitempty/required 处理
func validateChatKind(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", "basic", "channel":
		return true
	default:
		return false
	}
}

// RemoveTopStruct 去掉字段名前的结构体名，如 "ExcludeRequest.user_ids" → "user_ids"
func RemoveTopStruct(fields map[string]string) map[string]string {
	res := make(map[string]string, len(fields))
	for field, err := range fields {
		res[field[strings.Index(field, ".")+1:]] = err
	}
	return res
}

// defaultValidator gin 未初始化校验器时的兜底实现
type defaultValidator struct {
	validator *validator.Validate
}

func (v *defaultValidator) ValidateStruct(obj interface{}) error {
	return v.validator.Struct(obj)
}

func (v *defaultValidator) Engine() interface{} {
	return v.validator
}
