package camera

import (
	"fmt"

	"github.com/brutella/hc/characteristic"
	"github.com/brutella/hc/tlv8"
)

func setTLV8Payload(c *characteristic.Bytes, v interface{}) error {
	payload, err := tlv8.Marshal(v)
	if err != nil {
		return fmt.Errorf("tlv8 marshal %T: %w", v, err)
	}
	c.SetValue(payload)
	return nil
}
