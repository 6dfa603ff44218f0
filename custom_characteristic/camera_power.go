package custom_characteristic

import "github.com/brutella/hc/characteristic"

const TypeCameraPower = "7A3C0003-6E1B-4F0A-9C59-2D1F5B8E4C10"

type CameraPower struct {
	*characteristic.Bool
}

func NewCameraPower() *CameraPower {
	var char = characteristic.NewBool(TypeCameraPower)

	char.Perms = []string{characteristic.PermRead, characteristic.PermWrite, characteristic.PermEvents}
	char.Description = "Camera Power"

	char.SetValue(false)

	return &CameraPower{char}
}
