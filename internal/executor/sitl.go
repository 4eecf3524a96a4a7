package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2" // Используем v2 для Go 1.25
	"strings"
	"time"
)

// Поддерживаемые команды SITL-мока.
const (
	ActionTakeoff    = "takeoff"
	ActionScanSector = "scan_sector"
	ActionLand       = "land"
)

// ScanPayload — аргументы команды scan_sector.
type ScanPayload struct {
	Sector string `json:"sector"`
}

// ScanResult — ответ мока на успешный скан.
type ScanResult struct {
	Status     string  `json:"status"`
	Sector     string  `json:"sector"`
	EnergyUsed float64 `json:"energy_used"`
}

// SITLConnector имитирует автопилот в software-in-the-loop режиме:
// задержки похожи на реальную телеметрию, а один настраиваемый сектор
// стабильно заканчивается отказом — для честных failure-эпизодов в памяти.
type SITLConnector struct {
	failSector string
}

func NewSITLConnector(failSector string) *SITLConnector {
	return &SITLConnector{failSector: failSector}
}

func (c *SITLConnector) Call(ctx context.Context, action string, payload []byte) ([]byte, error) {
	// Имитируем задержку канала 20-80мс
	latency := time.Duration(20+rand.IntN(60)) * time.Millisecond

	select {
	case <-time.After(latency):
		// Имитация работы
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	switch action {
	case ActionTakeoff:
		return []byte(`{"status": "airborne", "altitude_m": 30}`), nil

	case ActionLand:
		return []byte(`{"status": "landed"}`), nil

	case ActionScanSector:
		var req ScanPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("bad scan payload: %w", err)
		}
		if c.failSector != "" && strings.EqualFold(req.Sector, c.failSector) {
			return nil, fmt.Errorf("scan aborted in sector %s: link lost", req.Sector)
		}
		res := ScanResult{
			Status:     "scanned",
			Sector:     req.Sector,
			EnergyUsed: 2.0 + rand.Float64(), // проценты SOC за проход
		}
		return json.Marshal(res)

	default:
		return nil, fmt.Errorf("action %s not supported by connector", action)
	}
}
