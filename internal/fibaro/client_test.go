package fibaro

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
	User   string
}

// fakeController serves canned responses per "METHOD path" and records
// every request.
type fakeController struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses map[string]func(w http.ResponseWriter)
}

func newFakeController(t *testing.T) (*fakeController, *Client) {
	t.Helper()
	f := &fakeController{responses: map[string]func(w http.ResponseWriter){}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{URL: srv.URL + "/", Username: "admin", Password: "pw", Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return f, c
}

func (f *fakeController) on(key string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key] = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (f *fakeController) serve(w http.ResponseWriter, r *http.Request) {
	user, _, _ := r.BasicAuth()
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, User: user}
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	h, ok := f.responses[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	h(w)
}

func (f *fakeController) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func TestNewClient_Validation(t *testing.T) {
	for _, u := range []string{"", "not a url", "/relative"} {
		if _, err := NewClient(Config{URL: u}); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewClient(%q) error = %v, want ErrInvalidConfig", u, err)
		}
	}
}

func TestFetchIncrementalState(t *testing.T) {
	f, c := newFakeController(t)
	f.on("GET /api/refreshStates", 200, `{
		"status": "IDLE",
		"last": 4711,
		"changes": [
			{"id": 12, "value": "55", "value2": "10"},
			{"id": "13", "dead": "true"}
		],
		"events": [
			{"type": "CentralSceneEvent", "data": {"id": 20, "keyId": 1, "keyAttribute": "Pressed"}},
			{"type": "SceneActivationEvent", "data": {"deviceId": 21, "sceneId": 3}}
		]
	}`)

	r, err := c.FetchIncrementalState(context.Background(), 4700)
	if err != nil {
		t.Fatalf("FetchIncrementalState() error = %v", err)
	}
	req := f.last()
	if req.Query != "last=4700" || req.User != "admin" {
		t.Errorf("request = %+v", req)
	}
	if r.Last != 4711 {
		t.Errorf("Last = %d, want 4711", r.Last)
	}
	if len(r.Changes) != 2 || r.Changes[0].ID != 12 || r.Changes[0].Properties["value"] != "55" || r.Changes[1].ID != 13 {
		t.Errorf("Changes = %+v", r.Changes)
	}
	if _, hasID := r.Changes[0].Properties["id"]; hasID {
		t.Error("id should not be a property")
	}
	if len(r.Events) != 2 || r.Events[0].DeviceID != 20 || r.Events[1].DeviceID != 21 || r.Events[1].Type != EventSceneActivation {
		t.Errorf("Events = %+v", r.Events)
	}
}

func TestFetchIncrementalState_StaleCursor(t *testing.T) {
	f, c := newFakeController(t)
	f.on("GET /api/refreshStates", 400, `{"error":"bad last"}`)

	_, err := c.FetchIncrementalState(context.Background(), 99)
	if !errors.Is(err, ErrStaleCursor) {
		t.Fatalf("error = %v, want ErrStaleCursor", err)
	}
}

func TestRequestFailed(t *testing.T) {
	f, c := newFakeController(t)
	f.on("POST /api/devices/5/action/turnOn", 500, `oops`)
	f.on("GET /api/globalVariables/missing", 404, ``)

	err := c.SendDeviceCommand(context.Background(), 5, "turnOn", nil)
	if !errors.Is(err, ErrRequestFailed) || errors.Is(err, ErrStaleCursor) {
		t.Errorf("500 error = %v", err)
	}
	_, err = c.ReadVariable(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrRequestFailed) {
		t.Errorf("404 error = %v", err)
	}
}

func TestSendDeviceCommand(t *testing.T) {
	f, c := newFakeController(t)
	if err := c.SendDeviceCommand(context.Background(), 7, "setValue", []any{42}); err != nil {
		t.Fatalf("SendDeviceCommand() error = %v", err)
	}
	req := f.last()
	if req.Method != http.MethodPost || req.Path != "/api/devices/7/action/setValue" {
		t.Errorf("request = %+v", req)
	}
	args, _ := req.Body["args"].([]any)
	if len(args) != 1 || args[0] != 42.0 {
		t.Errorf("args = %v", req.Body["args"])
	}
}

func TestVariables(t *testing.T) {
	f, c := newFakeController(t)
	f.on("GET /api/globalVariables/mood", 200, `{"name":"mood","value":"35"}`)

	v, err := c.ReadVariable(context.Background(), "mood")
	if err != nil || v != "35" {
		t.Fatalf("ReadVariable() = %q, %v", v, err)
	}

	if err := c.WriteVariable(context.Background(), "mood", "0"); err != nil {
		t.Fatalf("WriteVariable() error = %v", err)
	}
	req := f.last()
	if req.Method != http.MethodPut || req.Body["value"] != "0" || req.Body["name"] != "mood" {
		t.Errorf("write request = %+v", req)
	}
}

func TestZones(t *testing.T) {
	f, c := newFakeController(t)
	f.on("GET /api/panels/heating/3", 200, `{"id":3,"name":"Living","properties":{"currentTemperature":20.5,"handTemperature":23,"handTimestamp":4102444800,"temperature":19}}`)

	z, err := c.ReadZoneState(context.Background(), "heating", 3)
	if err != nil {
		t.Fatalf("ReadZoneState() error = %v", err)
	}
	props := z.Props(time.Unix(1700000000, 0))
	if props["value"] != 20.5 || props["setpoint"] != 23.0 || props["mode"] != "Heat" {
		t.Errorf("Props() = %v", props)
	}

	expired := z.Props(time.Unix(4102444801, 0))
	if expired["setpoint"] != 19.0 {
		t.Errorf("expired hand override setpoint = %v, want 19", expired["setpoint"])
	}

	until := time.Unix(1700007200, 0)
	if err := c.WriteZoneHandTemperature(context.Background(), "heating", 3, "Manual", 22.5, until); err != nil {
		t.Fatalf("WriteZoneHandTemperature() error = %v", err)
	}
	req := f.last()
	props2, _ := req.Body["properties"].(map[string]any)
	if req.Method != http.MethodPut || props2["handTemperature"] != 22.5 || props2["handTimestamp"] != 1700007200.0 {
		t.Errorf("zone write = %+v", req)
	}
}

func TestListDevicesAndScenes(t *testing.T) {
	f, c := newFakeController(t)
	f.on("GET /api/devices", 200, `[{"id":1,"type":"com.fibaro.binarySwitch","name":"Lamp","properties":{"value":"true"}}]`)
	f.on("GET /api/scenes", 200, `[{"id":4,"name":"Movie","visible":true}]`)
	f.on("GET /api/devices/1", 200, `{"id":1,"properties":{"value":"false"}}`)

	devs, err := c.ListDevices(context.Background())
	if err != nil || len(devs) != 1 || devs[0].Name != "Lamp" {
		t.Fatalf("ListDevices() = %+v, %v", devs, err)
	}
	scenes, err := c.ListScenes(context.Background())
	if err != nil || len(scenes) != 1 || scenes[0].ID != 4 {
		t.Fatalf("ListScenes() = %+v, %v", scenes, err)
	}
	props, err := c.ReadDeviceProperties(context.Background(), 1)
	if err != nil || props["value"] != "false" {
		t.Fatalf("ReadDeviceProperties() = %v, %v", props, err)
	}
}

func TestStartScene(t *testing.T) {
	f, c := newFakeController(t)
	if err := c.StartScene(context.Background(), 9); err != nil {
		t.Fatal(err)
	}
	if req := f.last(); req.Path != "/api/scenes/9/action/start" || req.Method != http.MethodPost {
		t.Errorf("request = %+v", req)
	}
}
