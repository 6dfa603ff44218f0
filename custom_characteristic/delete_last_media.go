package custom_characteristic

import "github.com/brutella/hc/characteristic"

const TypeDeleteLastMedia = "7A3C0002-6E1B-4F0A-9C59-2D1F5B8E4C10"

type DeleteLastMedia struct {
	*characteristic.Bool
}

func NewDeleteLastMedia() *DeleteLastMedia {
	var char = characteristic.NewBool(TypeDeleteLastMedia)

	char.Perms = []string{characteristic.PermRead, characteristic.PermWrite, characteristic.PermEvents}
	char.Description = "Delete Last Media"

	char.SetValue(false)

	return &DeleteLastMedia{char}
}
