package accessory

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"

	"github.com/brutella/hap"
	haccessory "github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"

	"github.com/nerrad567/hcbridge/internal/bridge"
	"github.com/nerrad567/hcbridge/internal/homekit"
	"github.com/nerrad567/hcbridge/internal/infrastructure/config"
	"github.com/nerrad567/hcbridge/internal/transform"
)

// HAP status codes returned from read and write handlers.
const (
	statusSuccess              = 0
	statusCommunicationFailure = -70402
	statusInvalidValue         = -70410
)

// serviceTypeLabel is the HAP ServiceLabel service that numbers the buttons
// of a multi-button remote.
const serviceTypeLabel = "CC"

// Handler receives protocol reads and writes. *bridge.Bridge implements it.
type Handler interface {
	HandleCharacteristicWrite(ctx context.Context, c *homekit.Characteristic, svc *homekit.Service, value any) error
	HandleCharacteristicRead(ctx context.Context, c *homekit.Characteristic, svc *homekit.Service) (any, error)
}

// Logger is the logging interface used by the adapter.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Options configures Build.
type Options struct {
	Name         string
	Manufacturer string
	Firmware     string
	Handler      Handler
	Logger       Logger
}

// ErrNoHandler is returned by Build without a Handler.
var ErrNoHandler = errors.New("accessory: handler is required")

// Adapter exposes bridge services as HAP accessories.
type Adapter struct {
	opts        Options
	root        *haccessory.Bridge
	accessories []*haccessory.A
	chars       map[*homekit.Characteristic]*characteristic.C
}

// Build converts every accessory into a HAP accessory under one bridge
// accessory. Services with no HAP equivalent are skipped.
func Build(opts Options, accs []bridge.Accessory) (*Adapter, error) {
	if opts.Handler == nil {
		return nil, ErrNoHandler
	}
	if opts.Manufacturer == "" {
		opts.Manufacturer = "Fibaro"
	}

	a := &Adapter{
		opts: opts,
		root: haccessory.NewBridge(haccessory.Info{
			Name:         opts.Name,
			Manufacturer: "hcbridge",
			Model:        "Home Center Bridge",
			Firmware:     opts.Firmware,
		}),
		chars: make(map[*homekit.Characteristic]*characteristic.C),
	}

	ids := make(map[uint64]string, len(accs))
	for _, acc := range accs {
		ha := a.build(acc)
		if ha == nil {
			continue
		}
		if prev, dup := ids[ha.Id]; dup {
			return nil, fmt.Errorf("accessory: id collision between %q and %q", prev, acc.Key)
		}
		ids[ha.Id] = acc.Key
		a.accessories = append(a.accessories, ha)
	}
	return a, nil
}

// Bridge returns the root bridge accessory.
func (a *Adapter) Bridge() *haccessory.A {
	return a.root.A
}

// Accessories returns the bridged accessories.
func (a *Adapter) Accessories() []*haccessory.A {
	return a.accessories
}

// Server creates the HAP server with pairing data stored under
// cfg.StoragePath.
func (a *Adapter) Server(cfg config.HomeKitConfig) (*hap.Server, error) {
	server, err := hap.NewServer(hap.NewFsStore(cfg.StoragePath), a.root.A, a.accessories...)
	if err != nil {
		return nil, fmt.Errorf("creating hap server: %w", err)
	}
	server.Pin = cfg.Pin
	if cfg.Port > 0 {
		server.Addr = fmt.Sprintf(":%d", cfg.Port)
	}
	return server, nil
}

// accessoryID derives a stable HAP accessory id from the accessory key.
// Ids 0 and 1 are reserved (1 is the bridge).
func accessoryID(key string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key)) //nolint:errcheck // hash writes never fail
	id := h.Sum64()
	if id <= 1 {
		id += 2
	}
	return id
}

func (a *Adapter) build(acc bridge.Accessory) *haccessory.A {
	if len(acc.Services) == 0 {
		return nil
	}
	ha := haccessory.New(haccessory.Info{
		Name:         acc.Name,
		SerialNumber: acc.Key,
		Manufacturer: a.opts.Manufacturer,
		Model:        string(acc.Services[0].Kind),
		Firmware:     a.opts.Firmware,
	}, category(acc.Services[0].Kind))
	ha.Id = accessoryID(acc.Key)

	labelled := false
	added := 0
	for _, svc := range acc.Services {
		hs := a.service(svc)
		if hs == nil {
			continue
		}
		ha.AddS(hs)
		added++
		if svc.Get(homekit.CharServiceLabelIndex) != nil {
			labelled = true
		}
	}
	if added == 0 {
		return nil
	}
	if labelled {
		label := service.New(serviceTypeLabel)
		ns := characteristic.NewServiceLabelNamespace()
		ns.SetValue(1) // arabic numerals
		label.AddC(ns.C)
		ha.AddS(label)
	}
	return ha
}

func (a *Adapter) service(svc *homekit.Service) *service.S {
	typ, ok := serviceTypes[svc.Kind]
	if !ok {
		a.logWarn("no HAP service for kind", "kind", svc.Kind, "subtype", svc.Subtype.String())
		return nil
	}
	hs := service.New(typ)
	for _, c := range svc.Characteristics {
		newC, ok := charConstructors[c.Kind]
		if !ok {
			a.logWarn("no HAP characteristic for kind", "kind", c.Kind, "subtype", svc.Subtype.String())
			continue
		}
		hc := newC()
		a.bind(svc, c, hc)
		hs.AddC(hc)
	}
	return hs
}

// bind connects one characteristic in both directions.
func (a *Adapter) bind(svc *homekit.Service, c *homekit.Characteristic, hc *characteristic.C) {
	a.chars[c] = hc

	if lo, hi := c.Range(); hi > lo && isNumeric(c.Meta.Format) {
		hc.MinVal = toHAP(c.Meta.Format, lo)
		hc.MaxVal = toHAP(c.Meta.Format, hi)
	}
	if v := c.Value(); v != nil {
		hc.SetValueRequest(toHAP(c.Meta.Format, v), nil)
	}

	// Bridge to protocol.
	c.AddListener(func(u homekit.Update) {
		if u.New == nil {
			return
		}
		hc.SetValueRequest(toHAP(c.Meta.Format, u.New), nil)
	})

	if c.Kind == homekit.CharName || c.Meta.Default == nil {
		return
	}

	// Protocol to bridge. A nil request marks updates made by the bridge
	// itself.
	if c.Meta.Writable {
		hc.OnCValueUpdate(func(_ *characteristic.C, newVal, _ interface{}, req *http.Request) {
			if req == nil {
				return
			}
			if err := a.opts.Handler.HandleCharacteristicWrite(req.Context(), c, svc, newVal); err != nil {
				a.logWarn("characteristic write failed",
					"subtype", svc.Subtype.String(), "characteristic", c.Kind, "error", err)
			}
		})
	}

	hc.ValueRequestFunc = func(req *http.Request) (interface{}, int) {
		ctx := context.Background()
		if req != nil {
			ctx = req.Context()
		}
		v, err := a.opts.Handler.HandleCharacteristicRead(ctx, c, svc)
		switch {
		case errors.Is(err, bridge.ErrDeviceUnreachable):
			return nil, statusCommunicationFailure
		case err != nil:
			a.logDebug("characteristic read failed", "subtype", svc.Subtype.String(), "characteristic", c.Kind, "error", err)
			return nil, statusInvalidValue
		}
		return toHAP(c.Meta.Format, v), statusSuccess
	}
}

func isNumeric(f homekit.Format) bool {
	return f == homekit.FormatInt || f == homekit.FormatUInt8 || f == homekit.FormatFloat
}

// toHAP converts a bridge value to the Go type HAP expects for format f.
func toHAP(f homekit.Format, v any) interface{} {
	switch f {
	case homekit.FormatBool:
		return transform.ToBool(v)
	case homekit.FormatInt, homekit.FormatUInt8:
		n, ok := transform.ToFloat(v)
		if !ok {
			return v
		}
		return int(math.Round(n))
	case homekit.FormatFloat:
		n, ok := transform.ToFloat(v)
		if !ok {
			return v
		}
		return n
	case homekit.FormatString:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return v
}

// HAP returns the protocol characteristic bound to c, or nil.
func (a *Adapter) HAP(c *homekit.Characteristic) *characteristic.C {
	return a.chars[c]
}

func (a *Adapter) logDebug(msg string, args ...any) {
	if a.opts.Logger != nil {
		a.opts.Logger.Debug(msg, args...)
	}
}

func (a *Adapter) logWarn(msg string, args ...any) {
	if a.opts.Logger != nil {
		a.opts.Logger.Warn(msg, args...)
	}
}
