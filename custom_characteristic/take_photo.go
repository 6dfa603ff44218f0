package custom_characteristic

import "github.com/brutella/hc/characteristic"

const TypeTakePhoto = "7A3C0001-6E1B-4F0A-9C59-2D1F5B8E4C10"

// TakePhoto triggers a still capture when written true. It resets to false
// once the capture has finished.
type TakePhoto struct {
	*characteristic.Bool
}

func NewTakePhoto() *TakePhoto {
	var char = characteristic.NewBool(TypeTakePhoto)

	char.Perms = []string{characteristic.PermRead, characteristic.PermWrite, characteristic.PermEvents}
	char.Description = "Take Photo"

	char.SetValue(false)

	return &TakePhoto{char}
}
