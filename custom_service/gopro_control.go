package custom_service

import (
	"github.com/brutella/hc/service"
	"github.com/duncanleo/hc-gopro/custom_characteristic"
)

const TypeGoProControl = "7A3C0000-6E1B-4F0A-9C59-2D1F5B8E4C10"

type GoProControl struct {
	*service.Service

	TakePhoto       *custom_characteristic.TakePhoto
	DeleteLastMedia *custom_characteristic.DeleteLastMedia
	CameraPower     *custom_characteristic.CameraPower
}

func NewGoProControl() *GoProControl {
	var svc = GoProControl{}
	svc.Service = service.New(TypeGoProControl)

	svc.TakePhoto = custom_characteristic.NewTakePhoto()
	svc.AddCharacteristic(svc.TakePhoto.Characteristic)

	svc.DeleteLastMedia = custom_characteristic.NewDeleteLastMedia()
	svc.AddCharacteristic(svc.DeleteLastMedia.Characteristic)

	svc.CameraPower = custom_characteristic.NewCameraPower()
	svc.AddCharacteristic(svc.CameraPower.Characteristic)

	return &svc
}
