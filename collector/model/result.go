package model

import (
	"fmt"

	"github.com/robertof/go-ble2mqtt/device"
)

// Result is the outcome of handing a reading to the publisher.
type Result struct {
	Topic   string
	Reading device.Reading
	Error   error
}

func (c Result) String() string {
	if c.Error != nil {
		return fmt.Sprintf("result:error(%v)", c.Error)
	} else {
		return fmt.Sprintf("result:success(%v)", c.Topic)
	}
}
