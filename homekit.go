package daqdio

import (
	"context"
	"fmt"
	"hash/fnv"

	dnslog "github.com/brutella/dnssd/log"
	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	hklog "github.com/brutella/hap/log"
	"github.com/brutella/hap/service"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/mbi-div-b/daqdio/register"
)

const defaultHomeKitDirectory = "./homekit"
const homeKitBridgeAuthor = "github.com/mbi-div-b"

const (
	contactDetected    = 0
	contactNotDetected = 1
)

// homeKitBridge publishes output channels as switches and input channels as
// contact sensors.
type homeKitBridge struct {
	accessories []*accessory.A
	contacts    map[string]*service.ContactSensor
	switches    map[string]*service.Switch
	logger      *log.Logger
}

func channelUniqueId(deviceName string, ch Channel) uint64 {
	hash := fnv.New64()
	hash.Write([]byte(deviceName + "_" + ch.Name))
	return hash.Sum64()
}

func contactState(level bool) int {
	if level {
		return contactDetected
	}
	return contactNotDetected
}

func newHomeKitBridge(deviceName, driverName, firmware string, controller *DioController) *homeKitBridge {
	hb := &homeKitBridge{
		contacts: make(map[string]*service.ContactSensor),
		switches: make(map[string]*service.Switch),
		logger:   newLogger(deviceName + " homekit"),
	}

	for _, ch := range controller.Channels() {
		if ch.IsCounter() {
			continue
		}

		info := accessory.Info{
			Name:         fmt.Sprintf("%s %s", deviceName, ch.Name),
			SerialNumber: fmt.Sprintf("dio:%s:%s", driverName, ch.Name),
			Manufacturer: homeKitBridgeAuthor,
			Firmware:     firmware,
		}

		var a *accessory.A
		switch ch.Access {
		case AccessWrite:
			sw := accessory.NewSwitch(info)
			name := ch.Name
			sw.Switch.On.OnValueRemoteUpdate(func(on bool) {
				err := controller.WriteChannel(name, on)
				if err != nil {
					hb.logger.Error("homekit write failed", "channel", name, "err", err)
				}
			})
			hb.switches[ch.Name] = sw.Switch
			a = sw.A
		case AccessRead:
			a = accessory.New(info, accessory.TypeSensor)
			cs := service.NewContactSensor()
			a.AddS(cs.S)
			hb.contacts[ch.Name] = cs
		}

		a.Id = channelUniqueId(deviceName, ch)
		hb.accessories = append(hb.accessories, a)
	}

	return hb
}

// sync pushes read input levels to the contact sensors and the commanded
// output levels to the switches, so writes made over http or mqtt show up.
func (hb *homeKitBridge) sync(snapshot map[string]bool, outputs map[PortName]uint8) {
	for name, cs := range hb.contacts {
		level, found := snapshot[name]
		if !found {
			continue
		}
		if cs.ContactSensorState.Value() != contactState(level) {
			cs.ContactSensorState.SetValue(contactState(level))
		}
	}

	for port, shadow := range outputs {
		for bit, level := range register.Decode(shadow) {
			sw, found := hb.switches[fmt.Sprintf("%s%d", port, bit)]
			if !found {
				continue
			}
			if sw.On.Value() != level {
				sw.On.SetValue(level)
			}
		}
	}
}

// StartHomeKit serves the bridge until ctx is cancelled.
func (dd *DaqDio) StartHomeKit(ctx context.Context, firmwareVersion string) error {
	if dd.controller == nil {
		return ErrNotConfigured
	}

	bridge := accessory.NewBridge(accessory.Info{
		Name:         dd.Name,
		Manufacturer: homeKitBridgeAuthor,
		Firmware:     firmwareVersion,
	})

	hb := newHomeKitBridge(dd.Name, dd.driver.String(), firmwareVersion, dd.controller)
	dd.stateLock.Lock()
	dd.hk = hb
	dd.stateLock.Unlock()

	var store hap.Store
	if len(dd.HkDirectory) > 1 {
		store = hap.NewFsStore(dd.HkDirectory)
	} else {
		store = hap.NewFsStore(defaultHomeKitDirectory)
	}
	hkServer, err := hap.NewServer(store, bridge.A, hb.accessories...)
	if err != nil {
		return errors.Wrap(err, "failed to create HomeKit server")
	}
	hkServer.Pin = dd.HkPin
	if len(dd.HkAddress) > 0 {
		hkServer.Addr = dd.HkAddress
	}

	if dd.HkDebug {
		hklog.Debug.Enable()
		dnslog.Debug.Enable()
	}

	return hkServer.ListenAndServe(ctx)
}
