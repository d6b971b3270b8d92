package server

import (
	"github.com/hitoshi/hcadmin/internal/hcloud"
	"github.com/hitoshi/hcadmin/internal/model"
	"github.com/hitoshi/hcadmin/internal/validation"
)

// maxUserDataBytes はcloud-init user-dataの上限（32 KiB）。
const maxUserDataBytes = 32 * 1024

// validateCreateOpts はサーバー作成ペイロードを検証し、名前を正規化する。
// location/datacenterは厳密にどちらか一方のみ。両方指定・両方省略は検証エラー。
// 検証に成功した場合、optsのNameは正規化済みの値に置き換わる。
func validateCreateOpts(opts *hcloud.CreateServerOpts) error {
	if err := validation.ValidateStruct(opts); err != nil {
		return err
	}

	name, err := validation.NormalizeServerName(opts.Name)
	if err != nil {
		return err
	}
	opts.Name = name

	hasLocation := opts.Location != ""
	hasDatacenter := opts.Datacenter != ""
	if hasLocation == hasDatacenter {
		return model.NewValidationError("location", "exclusive",
			"locationとdatacenterは厳密にどちらか一方を指定してください")
	}

	if len(opts.UserData) > maxUserDataBytes {
		return model.NewValidationError("user_data", "max", "user_dataは32KiB以内で指定してください")
	}

	return nil
}
