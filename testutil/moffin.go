package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/trezcool/forma/core/moffin"
)

// FakeMoffin is an in-memory moffin.Client. Unknown RFCs and CURPs answer with a 404 APIError.
type FakeMoffin struct {
	mu      sync.Mutex
	RFCs    map[string]map[string]interface{}
	CURPs   map[string]map[string]interface{}
	Configs []moffin.FormConfig
	Creds   []moffin.Credentials
	calls   map[string]int

	// Gate, when set, holds RFC and CURP lookups until it is closed; they then fail
	// if their context is done.
	Gate chan struct{}
}

var _ moffin.Client = (*FakeMoffin)(nil)

func NewFakeMoffin() *FakeMoffin {
	return &FakeMoffin{
		RFCs: map[string]map[string]interface{}{
			"ACM010101AB1": {
				"rfc":          "ACM010101AB1",
				"razon_social": "ACME SA DE CV",
				"domicilio_fiscal": map[string]interface{}{
					"calle":   "Reforma 222",
					"colonia": "Juarez",
					"cp":      "06600",
				},
			},
		},
		CURPs: map[string]map[string]interface{}{
			"PEGJ900101HDFRRN09": {
				"curp":             "PEGJ900101HDFRRN09",
				"nombres":          "JUAN",
				"primer_apellido":  "PEREZ",
				"segundo_apellido": "GARCIA",
				"fecha_nacimiento": "1990-01-01",
			},
		},
		calls: make(map[string]int),
	}
}

// Factory records the credentials and returns the fake itself.
func (f *FakeMoffin) Factory(creds moffin.Credentials) (moffin.Client, error) {
	f.mu.Lock()
	f.Creds = append(f.Creds, creds)
	f.mu.Unlock()
	return f, nil
}

// Calls returns how many times the given method was called.
func (f *FakeMoffin) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FakeMoffin) record(method string) {
	f.mu.Lock()
	f.calls[method]++
	f.mu.Unlock()
}

func (f *FakeMoffin) wait(ctx context.Context) error {
	f.mu.Lock()
	gate := f.Gate
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	<-gate
	return ctx.Err()
}

func notFound() error {
	return &moffin.APIError{StatusCode: 404, Body: `{"message":"not found"}`}
}

func (f *FakeMoffin) RFCData(ctx context.Context, rfc string) (map[string]interface{}, error) {
	f.record("RFCData")
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.RFCs[rfc]; ok {
		return data, nil
	}
	return nil, notFound()
}

func (f *FakeMoffin) CURPData(ctx context.Context, curp string) (map[string]interface{}, error) {
	f.record("CURPData")
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.CURPs[curp]; ok {
		return data, nil
	}
	return nil, notFound()
}

func (f *FakeMoffin) CalculateRFC(_ context.Context, calc moffin.RFCCalculation) (map[string]interface{}, error) {
	f.record("CalculateRFC")
	rfc := strings.ToUpper(initial(calc.LastName1, 2) + initial(calc.LastName2, 1) + initial(calc.Name, 1))
	if digits := strings.ReplaceAll(calc.BirthDate, "-", ""); len(digits) > 2 {
		rfc += digits[2:]
	}
	rfc += "XX0"
	return map[string]interface{}{"rfc": rfc}, nil
}

func (f *FakeMoffin) CreateFormConfig(_ context.Context, cfg moffin.FormConfig) (map[string]interface{}, error) {
	f.record("CreateFormConfig")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Configs = append(f.Configs, cfg)
	return map[string]interface{}{"id": "mf_" + cfg.Slug}, nil
}

func initial(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) < n {
		return s + strings.Repeat("X", n-len(s))
	}
	return s[:n]
}
