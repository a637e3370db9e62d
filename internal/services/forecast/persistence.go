package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"DexSignal/internal/domain/repository"
)

const (
	LSTMFile = "lstm_model.json"
	GBTFile  = "gbt_model.json"
)

var errNotTrained = fmt.Errorf("model not trained: %w", repository.ErrModelNotReady)

// IsNotTrained reports whether err came from predicting with an untrained model.
func IsNotTrained(err error) bool { return errors.Is(err, errNotTrained) }

type lstmState struct {
	Units   int         `json:"units"`
	W       []float64   `json:"w"`
	U       [][]float64 `json:"u"`
	B       []float64   `json:"b"`
	Wy      []float64   `json:"wy"`
	By      float64     `json:"by"`
	SavedAt time.Time   `json:"savedAt"`
}

// Save writes the trained LSTM weights to dir/lstm_model.json.
func (m *LSTM) Save(dir string) error {
	if !m.trained {
		return errNotTrained
	}
	st := lstmState{
		Units:   m.cfg.Units,
		W:       m.W,
		U:       m.U,
		B:       m.B,
		Wy:      m.Wy,
		By:      m.By,
		SavedAt: time.Now().UTC(),
	}
	return writeJSON(filepath.Join(dir, LSTMFile), st)
}

// Load restores LSTM weights. A missing file leaves the model untrained and
// returns os.ErrNotExist.
func (m *LSTM) Load(dir string) error {
	var st lstmState
	if err := readJSON(filepath.Join(dir, LSTMFile), &st); err != nil {
		return err
	}
	h := st.Units
	if h <= 0 || len(st.W) != 4*h || len(st.U) != 4*h || len(st.B) != 4*h || len(st.Wy) != h {
		return fmt.Errorf("lstm: saved weights have inconsistent shape (units=%d)", h)
	}
	for _, row := range st.U {
		if len(row) != h {
			return fmt.Errorf("lstm: saved recurrent row has %d columns, want %d", len(row), h)
		}
	}
	m.cfg.Units = h
	m.W, m.U, m.B, m.Wy, m.By = st.W, st.U, st.B, st.Wy, st.By
	m.trained = true
	return nil
}

// Save writes the trained ensemble to dir/gbt_model.json.
func (m *GBT) Save(dir string) error {
	if !m.Trained() {
		return errNotTrained
	}
	return writeJSON(filepath.Join(dir, GBTFile), m)
}

// Load restores a saved ensemble. A missing file returns os.ErrNotExist.
func (m *GBT) Load(dir string) error {
	var st GBT
	if err := readJSON(filepath.Join(dir, GBTFile), &st); err != nil {
		return err
	}
	if len(st.Trees) == 0 || st.Features <= 0 {
		return errors.New("gbt: saved ensemble is empty")
	}
	m.Base, m.Rate, m.Trees, m.Features = st.Base, st.Rate, st.Trees, st.Features
	return nil
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace model: %w", err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
