// Package validation は外部入力の検証と正規化を提供する。
// 境界で一度だけ型付き構造体へ検証し、以降は型のない値を扱わない。
// 検証は副作用のある呼び出しより論理的に前に実行される。
package validation

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/hcadmin/internal/model"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// instance は共有のvalidatorインスタンスを返す。
// 構造体情報をキャッシュするためシングルトンとして保持する。
func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// エラー報告にはGoのフィールド名ではなくJSONフィールド名を使う
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ValidateStruct は構造体のvalidateタグを検証し、
// 違反をフィールド単位で保持するValidationErrorへ変換する。
func ValidateStruct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// InvalidValidationError等。入力起因ではなく呼び出し側の欠陥
		return fmt.Errorf("検証の実行に失敗しました: %w", err)
	}

	violations := make([]model.FieldViolation, 0, len(verrs))
	for _, fe := range verrs {
		violations = append(violations, model.FieldViolation{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: violationMessage(fe),
		})
	}
	return &model.ValidationError{Violations: violations}
}

// violationMessage は違反内容の表示用メッセージを生成する。
func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "必須項目です"
	case "max":
		return fmt.Sprintf("最大値/最大長 %s を超えています", fe.Param())
	case "min":
		return fmt.Sprintf("最小値/最小長 %s を下回っています", fe.Param())
	case "oneof":
		return fmt.Sprintf("次のいずれかを指定してください: %s", fe.Param())
	default:
		return fmt.Sprintf("制約 %s を満たしていません", fe.Tag())
	}
}

// FlexID はJSONの文字列・数値のどちらでも受け付ける数値識別子。
// 境界で整数へ正規化する。
type FlexID int64

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (f *FlexID) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("数値識別子として解釈できません: %q", v)
		}
		*f = FlexID(n)
		return nil
	case float64:
		n := int64(v)
		if float64(n) != v {
			return fmt.Errorf("整数ではない識別子です: %v", v)
		}
		*f = FlexID(n)
		return nil
	default:
		return fmt.Errorf("識別子は文字列または数値で指定してください (got %T)", raw)
	}
}

// Int64 は正規化済みの値を返す。
func (f FlexID) Int64() int64 { return int64(f) }
