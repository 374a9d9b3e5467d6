package server

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"snapcam/internal/sink"
)

var (
	validationsOnce sync.Once
	validationsErr  error
)

// registerValidations はリクエストのバインドで使う独自タグを登録する
func registerValidations() error {
	validationsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validationsErr = fmt.Errorf("バリデーターの取得に失敗: %T", binding.Validator.Engine())
			return
		}
		validationsErr = v.RegisterValidation("objectpath", validateObjectPath)
	})
	return validationsErr
}

// validateObjectPath はアップロード先のパス接頭辞を検証する
func validateObjectPath(fl validator.FieldLevel) bool {
	return sink.ValidPathPrefix(fl.Field().String())
}
