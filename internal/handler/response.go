package handler

import (
	"errors"
	"net/http"

	"kama_call_ring/pkg/errorx"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ResponseData 统一响应结构体
// 业务错误也返回 200，由 code 区分
type ResponseData struct {
	Code int `json:"code"`
	Msg  any `json:"msg"`
	Data any `json:"data"`
}

func writeResponse(c *gin.Context, code int, msg, data any) {
	c.JSON(http.StatusOK, ResponseData{Code: code, Msg: msg, Data: data})
}

// HandleSuccess 返回成功响应
func HandleSuccess(c *gin.Context, data any) {
	writeResponse(c, errorx.CodeSuccess, "success", data)
}

// HandleError 业务错误原样返回错误码，其他错误记录日志后按服务繁忙返回
//
//	if err := h.callSvc.Refuse(ctx, chat); err != nil {
//	    HandleError(c, err)
//	    return
//	}
func HandleError(c *gin.Context, err error) {
	var codeErr *errorx.CodeError
	if errors.As(err, &codeErr) {
		switch codeErr.Code {
		case errorx.CodeServerBusy, errorx.CodeDBError, errorx.CodeCacheError, errorx.CodeRemoteError, errorx.CodeMQError:
			zap.L().Warn("request failed",
				zap.String("path", c.Request.URL.Path),
				zap.Int("code", codeErr.Code),
				zap.Error(err),
			)
		}
		writeResponse(c, codeErr.Code, codeErr.Msg, nil)
		return
	}

	zap.L().Error("system error",
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.Error(err),
	)
	writeResponse(c, errorx.ErrServerBusy.Code, errorx.ErrServerBusy.Msg, nil)
}

// HandleParamError 参数绑定失败，校验错误按字段翻译
func HandleParamError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		writeResponse(c, errorx.ErrInvalidParam.Code, RemoveTopStruct(validationErrs.Translate(Trans)), nil)
		return
	}

	zap.L().Warn("param bind error", zap.String("path", c.Request.URL.Path), zap.Error(err))
	writeResponse(c, errorx.ErrInvalidParam.Code, errorx.ErrInvalidParam.Msg, nil)
}
