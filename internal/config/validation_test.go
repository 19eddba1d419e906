package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, Validate(GetDefaultConfig()))
}

func TestValidate_CollectsEveryField(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Binder.TargetDriver = ""
	cfg.Modules.ModprobeDir = "modprobe.d"
	cfg.Bootloader.GrubOutputs = []string{"/boot/grub2/grub.cfg", "grub.cfg"}
	cfg.Logging.Level = "verbose"

	err := Validate(cfg)
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	fields := make([]string, 0, len(verrs))
	for _, v := range verrs {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{
		"bootloader.grubOutputs[1]",
		"binder.targetDriver",
		"modules.modprobeDir",
		"logging.level",
	}, fields)
	assert.Contains(t, err.Error(), "validation failed: ")
}

func TestValidationErrors_Error(t *testing.T) {
	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
	assert.Equal(t, "field 'a': is required", ValidationErrors{{Field: "a", Message: "is required"}}.Error())
	assert.Equal(t, "plain", ValidationError{Message: "plain"}.Error())
}
