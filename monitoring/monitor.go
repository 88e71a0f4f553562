// Package monitoring serves the state of running translators over HTTP.
package monitoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	// Enable profiling
	_ "net/http/pprof"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/syifan/goseth"

	"github.com/sarchlab/vmsa/mem/vm/mmu"
	"github.com/sarchlab/vmsa/monitoring/web"
	"github.com/sarchlab/vmsa/sim/hooking"
	"github.com/sarchlab/vmsa/sim/id"
)

// A Component is anything with a name that the monitor can list and inspect.
type Component interface {
	Name() string
}

// Monitor reports the components of a translation run, the faults and
// latency of their translations, and the resources of the process.
type Monitor struct {
	portNumber int
	startTime  time.Time
	idGen      id.IDGenerator

	componentsLock sync.RWMutex
	components     []Component

	faults  *hooking.TagCountTracer
	latency *hooking.TotalAvgTimeTracer

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

func isTranslation(ts hooking.TaskStart) bool {
	return ts.Kind == mmu.TaskKindTranslation
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		startTime: time.Now(),
		idGen:     id.NewIDGenerator(),
		faults:    hooking.NewTagCountTracer(isTranslation),
		latency: hooking.NewAverageTimeTracer(
			hooking.NewWallClock(), isTranslation),
	}
}

// WithPortNumber sets the port the server listens on. Ports below 1000 are
// refused and replaced by a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		log.Printf("port %d is reserved, monitoring on a random port instead",
			portNumber)

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterComponent adds a component to the listing. Translations of
// hookable components are counted by fault and timed.
func (m *Monitor) RegisterComponent(c Component) {
	m.componentsLock.Lock()
	m.components = append(m.components, c)
	m.componentsLock.Unlock()

	if h, ok := c.(hooking.Hookable); ok {
		h.AcceptHook(m.faults)
		h.AcceptHook(m.latency)
	}
}

func (m *Monitor) component(name string) (Component, bool) {
	m.componentsLock.RLock()
	defer m.componentsLock.RUnlock()

	for _, c := range m.components {
		if c.Name() == name {
			return c, true
		}
	}

	return nil, false
}

// CreateProgressBar creates a bar that tracks total translations.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        m.idGen.Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	m.progressBars = append(m.progressBars, bar)
	m.progressBarsLock.Unlock()

	return bar
}

// CompleteProgressBar stops showing a bar.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	for i, b := range m.progressBars {
		if b == pb {
			m.progressBars = append(m.progressBars[:i], m.progressBars[i+1:]...)
			return
		}
	}
}

// Router returns the handler that serves the monitoring API and pages.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/list_components", m.listComponents)
	api.HandleFunc("/component/{name}", m.serializeComponent)
	api.HandleFunc("/field/{json}", m.serializeField)
	api.HandleFunc("/faults", m.listFaults)
	api.HandleFunc("/latency", m.reportLatency)
	api.HandleFunc("/progress", m.listProgressBars)
	api.HandleFunc("/resource", m.listResources)
	api.HandleFunc("/profile", m.collectProfile)

	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer serves the monitor in the background and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring translation with %s\n", url)

	go func() {
		if err := http.Serve(listener, m.Router()); err != nil {
			log.Panic(err)
		}
	}()

	return url, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if _, err := w.Write(data); err != nil {
		log.Printf("monitor: %v", err)
	}
}

func httpError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	fmt.Fprintf(w, "Error: %s", err)
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	m.componentsLock.RLock()
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}
	m.componentsLock.RUnlock()

	writeJSON(w, names)
}

func serialize(w http.ResponseWriter, c Component, entryPoint []string) {
	serializer := goseth.NewSerializer()
	serializer.SetRoot(c)
	serializer.SetMaxDepth(1)

	if entryPoint != nil {
		if err := serializer.SetEntryPoint(entryPoint); err != nil {
			httpError(w, http.StatusBadRequest, err)
			return
		}
	}

	if err := serializer.Serialize(w); err != nil {
		log.Printf("monitor: serializing %s: %v", c.Name(), err)
	}
}

func (m *Monitor) serializeComponent(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	c, ok := m.component(name)
	if !ok {
		http.Error(w, "Component not found", http.StatusNotFound)
		return
	}

	serialize(w, c, nil)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) serializeField(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	if err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req); err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}

	c, ok := m.component(req.CompName)
	if !ok {
		http.Error(w, "Component not found", http.StatusNotFound)
		return
	}

	if _, err := walkFields(c, req.FieldName); err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}

	serialize(w, c, strings.Split(req.FieldName, "."))
}

var errFieldFormat = errors.New("field format error")

// walkFields follows a dot separated path of struct fields, slice indexes and
// string map keys from root.
func walkFields(root any, path string) (reflect.Value, error) {
	v := deref(reflect.ValueOf(root))

	for _, name := range strings.Split(path, ".") {
		next, err := stepInto(v, name)
		if err != nil {
			return v, err
		}

		v = deref(next)
	}

	return v, nil
}

func deref(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v
		}

		v = v.Elem()
	}

	return v
}

func stepInto(v reflect.Value, name string) (reflect.Value, error) {
	switch v.Kind() {
	case reflect.Struct:
		f := v.FieldByName(name)
		if !f.IsValid() {
			return f, fmt.Errorf("%w: no field %s", errFieldFormat, name)
		}

		return f, nil
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(name)
		if err != nil || i < 0 || i >= v.Len() {
			return v, fmt.Errorf("%w: bad index %s", errFieldFormat, name)
		}

		return v.Index(i), nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return v, fmt.Errorf("%w: map key of %s is not a string",
				errFieldFormat, name)
		}

		e := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if !e.IsValid() {
			return e, fmt.Errorf("%w: no key %s", errFieldFormat, name)
		}

		return e, nil
	default:
		return v, fmt.Errorf("%w: kind %s cannot be walked",
			errFieldFormat, v.Kind())
	}
}

func (m *Monitor) listFaults(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.faults.Counts())
}

type latencyRsp struct {
	Count       uint64  `json:"count"`
	TotalTime   float64 `json:"total_time"`
	AverageTime float64 `json:"average_time"`
}

func (m *Monitor) reportLatency(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, latencyRsp{
		Count:       m.latency.TotalCount(),
		TotalTime:   m.latency.TotalTime(),
		AverageTime: m.latency.AverageTime(),
	})
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}
