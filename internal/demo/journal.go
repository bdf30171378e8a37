package demo

import (
	"encoding/json"
	"fmt"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/betbot/perpdemo/pkg/persistence"
)

const journalPrefix = "tx"

// 交易记录步骤
const (
	StepOpenLimit   = "open_limit"
	StepCancelLimit = "cancel_limit"
	StepOpenMarket  = "open_market"
	StepUpdateTP    = "update_tp"
	StepUpdateSL    = "update_sl"
	StepClose       = "close"
)

// TxRecord 一笔已上链交易
type TxRecord struct {
	RunID      string    `json:"run_id"`
	Seq        int       `json:"seq"`
	Step       string    `json:"step"`
	PairID     uint16    `json:"pair_id"`
	Index      uint8     `json:"index"`
	TxHash     string    `json:"tx_hash"`
	Block      uint64    `json:"block,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (r TxRecord) String() string {
	return fmt.Sprintf("#%d %s pair=%d index=%d tx=%s", r.Seq, r.Step, r.PairID, r.Index, r.TxHash)
}

// WithJournal stores every mined transaction of the run in svc.
func WithJournal(svc persistence.Service) RunnerOption {
	return func(r *Runner) { r.journal = svc }
}

func (r *Runner) record(step string, pairID uint16, index uint8, receipt *ethtypes.Receipt) {
	if r.journal == nil {
		return
	}
	r.seq++
	rec := TxRecord{
		RunID:      r.runID,
		Seq:        r.seq,
		Step:       step,
		PairID:     pairID,
		Index:      index,
		TxHash:     txHash(receipt),
		RecordedAt: time.Now().UTC(),
	}
	if receipt != nil && receipt.BlockNumber != nil {
		rec.Block = receipt.BlockNumber.Uint64()
	}
	tag := fmt.Sprintf("%03d-%s", rec.Seq, step)
	if err := r.journal.NewStore(journalPrefix, r.runID, tag).Save(rec); err != nil {
		r.log.WithError(err).WithField("step", step).Warn("failed to journal transaction")
	}
}

// LoadRun returns the journaled transactions of runID in order.
func LoadRun(svc persistence.Service, runID string) ([]TxRecord, error) {
	var out []TxRecord
	err := svc.Scan(journalPrefix, runID, func(tag string, raw []byte) error {
		var rec TxRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("journal %s: %w", tag, err)
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}
