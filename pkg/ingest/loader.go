package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fadedpez/balancewatch/internal/logging"
	"github.com/fadedpez/balancewatch/internal/types"
	"github.com/fadedpez/balancewatch/pkg/repositories/group"
	"github.com/fadedpez/balancewatch/pkg/repositories/movement"
	"github.com/fadedpez/balancewatch/pkg/repositories/snapshot"
)

// maxLineSize bounds a single JSON-lines document
const maxLineSize = 1 << 20

// Document kinds
const (
	KindSnapshots = "snapshots"
	KindMovements = "movements"
	KindGroups    = "groups"
)

// Rejection is a quarantined document
type Rejection struct {
	Line    int               `json:"line"`
	ID      string            `json:"id,omitempty"`
	Reasons map[string]string `json:"reasons"` // field -> failed rule
}

// Error renders the rejection as a MALFORMED_DATA error
func (r Rejection) Error() string {
	fields := make([]string, 0, len(r.Reasons))
	for f := range r.Reasons {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s=%s", f, r.Reasons[f]))
	}
	return fmt.Sprintf("%s: line %d: %s", types.ErrMalformedData, r.Line, strings.Join(parts, ", "))
}

// Report summarises one load
type Report struct {
	Kind     string      `json:"kind"`
	Loaded   int         `json:"loaded"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// Loader validates raw documents and writes the accepted ones to the stores.
// Any store may be nil when the matching load is not used.
type Loader struct {
	snapshots snapshot.Repository
	movements movement.Repository
	groups    group.Repository
	validate  *validator.Validate
	offset    time.Duration
	log       *logging.Logger
}

// NewLoader creates a loader. utcOffsetHours shifts movement timestamps from
// UTC into the ledger's local wall clock.
func NewLoader(snapshots snapshot.Repository, movements movement.Repository, groups group.Repository, utcOffsetHours int, log *logging.Logger) *Loader {
	if log == nil {
		log = logging.Default
	}
	return &Loader{
		snapshots: snapshots,
		movements: movements,
		groups:    groups,
		validate:  newValidator(),
		offset:    time.Duration(utcOffsetHours) * time.Hour,
		log:       log,
	}
}

// LoadSnapshots reads snapshot documents, one JSON object per line
func (l *Loader) LoadSnapshots(ctx context.Context, r io.Reader) (*Report, error) {
	if l.snapshots == nil {
		return nil, types.NewReconError(types.ErrInvalidArgument, "no snapshot store configured")
	}
	return l.load(ctx, KindSnapshots, r, func(line []byte) (string, error) {
		var doc SnapshotDocument
		if err := l.decode(line, &doc); err != nil {
			return doc.ID, err
		}
		return doc.ID, l.snapshots.Save(ctx, doc.ToSnapshot())
	})
}

// LoadMovements reads movement documents and upserts them by id, so a later
// status change overwrites the stored entry
func (l *Loader) LoadMovements(ctx context.Context, r io.Reader) (*Report, error) {
	if l.movements == nil {
		return nil, types.NewReconError(types.ErrInvalidArgument, "no movement store configured")
	}
	return l.load(ctx, KindMovements, r, func(line []byte) (string, error) {
		var doc MovementDocument
		if err := l.decode(line, &doc); err != nil {
			return doc.ID, err
		}
		m, err := doc.ToMovement(l.offset)
		if err != nil {
			return doc.ID, rejectField("updatedAt", "timestamp")
		}
		return doc.ID, l.movements.Upsert(ctx, m)
	})
}

// LoadGroups reads group membership documents, replacing existing ones
func (l *Loader) LoadGroups(ctx context.Context, r io.Reader) (*Report, error) {
	if l.groups == nil {
		return nil, types.NewReconError(types.ErrInvalidArgument, "no group store configured")
	}
	return l.load(ctx, KindGroups, r, func(line []byte) (string, error) {
		var doc GroupDocument
		if err := l.decode(line, &doc); err != nil {
			return doc.Grupo, err
		}
		membership := doc.ToMembership()
		if len(membership.Companies) == 0 {
			return doc.Grupo, rejectField("companias", "min")
		}
		return doc.Grupo, l.groups.Save(ctx, membership)
	})
}

// Load dispatches on kind
func (l *Loader) Load(ctx context.Context, kind string, r io.Reader) (*Report, error) {
	switch kind {
	case KindSnapshots:
		return l.LoadSnapshots(ctx, r)
	case KindMovements:
		return l.LoadMovements(ctx, r)
	case KindGroups:
		return l.LoadGroups(ctx, r)
	default:
		return nil, types.NewReconError(types.ErrInvalidArgument, fmt.Sprintf("unknown document kind %q", kind))
	}
}

// invalidDocument carries per-field reasons out of decode
type invalidDocument struct {
	reasons map[string]string
}

func (e *invalidDocument) Error() string {
	return fmt.Sprintf("invalid document: %v", e.reasons)
}

func rejectField(field, rule string) error {
	return &invalidDocument{reasons: map[string]string{field: rule}}
}

func (l *Loader) decode(line []byte, doc interface{}) error {
	if err := json.Unmarshal(line, doc); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return rejectField(typeErr.Field, "type")
		}
		return rejectField("document", "json")
	}
	if err := l.validate.Struct(doc); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		reasons := make(map[string]string, len(validationErrors))
		for _, ve := range validationErrors {
			reasons[ve.Field()] = ve.Tag()
		}
		return &invalidDocument{reasons: reasons}
	}
	return nil
}

// load runs store for every non-blank line. Invalid documents are
// quarantined in the report; a store error aborts the load.
func (l *Loader) load(ctx context.Context, kind string, r io.Reader, store func([]byte) (string, error)) (*Report, error) {
	report := &Report{Kind: kind}
	log := l.log.WithField("kind", kind)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return report, err
		}
		line := []byte(strings.TrimSpace(scanner.Text()))
		if len(line) == 0 {
			continue
		}

		id, err := store(line)
		var invalid *invalidDocument
		switch {
		case err == nil:
			report.Loaded++
		case errors.As(err, &invalid):
			rejection := Rejection{Line: lineNo, ID: id, Reasons: invalid.reasons}
			report.Rejected = append(report.Rejected, rejection)
			log.Warn("Quarantined document: %v", rejection)
		default:
			return report, types.WrapError(types.ErrStoreUnavailable, fmt.Sprintf("failed to store %s line %d", kind, lineNo), err)
		}
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("failed to read %s: %w", kind, err)
	}

	log.Info("Loaded %d %s, quarantined %d", report.Loaded, kind, len(report.Rejected))
	return report, nil
}
