package warm

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/strata-ai/strata/record"
)

// execer covers *sql.Tx and *sql.DB for the sub-record helpers.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// subRecordTables maps each memory type to its sub-record table.
var subRecordTables = map[record.MemoryType]string{
	record.TypeWorking:    "working_memories",
	record.TypeEpisodic:   "episodic_memories",
	record.TypeSemantic:   "semantic_memories",
	record.TypeProcedural: "procedural_memories",
	record.TypeShared:     "shared_memories",
	record.TypeBusiness:   "business_memories",
}

// subRecordWriters dispatches the per-variant insert. One entry per memory
// type; adding a type means adding a writer and a reader here.
var subRecordWriters = map[record.MemoryType]func(ctx context.Context, ex execer, id string, p record.Payload) error{
	record.TypeWorking:    writeWorking,
	record.TypeEpisodic:   writeEpisodic,
	record.TypeSemantic:   writeSemantic,
	record.TypeProcedural: writeProcedural,
	record.TypeShared:     writeShared,
	record.TypeBusiness:   writeBusiness,
}

// subRecordReaders dispatches the per-variant select.
var subRecordReaders = map[record.MemoryType]func(ctx context.Context, ex execer, id string) (record.Payload, error){
	record.TypeWorking:    readWorking,
	record.TypeEpisodic:   readEpisodic,
	record.TypeSemantic:   readSemantic,
	record.TypeProcedural: readProcedural,
	record.TypeShared:     readShared,
	record.TypeBusiness:   readBusiness,
}

// writeSubRecord inserts the type-specific sub-record for the record's
// payload. A nil payload writes nothing.
func writeSubRecord(ctx context.Context, ex execer, rec *record.Record) error {
	if rec.Payload == nil {
		return nil
	}
	writer, ok := subRecordWriters[rec.Type]
	if !ok {
		return fmt.Errorf("warm: no sub-record writer for type %q", rec.Type)
	}
	if err := writer(ctx, ex, rec.ID, rec.Payload); err != nil {
		return fmt.Errorf("warm: write %s sub-record %s: %w", rec.Type, rec.ID, err)
	}
	return nil
}

// readSubRecord loads the type-specific sub-record onto the record. A
// missing sub-record leaves Payload nil.
func readSubRecord(ctx context.Context, ex execer, rec *record.Record) error {
	reader, ok := subRecordReaders[rec.Type]
	if !ok {
		return fmt.Errorf("warm: no sub-record reader for type %q", rec.Type)
	}
	payload, err := reader(ctx, ex, rec.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("warm: read %s sub-record %s: %w", rec.Type, rec.ID, err)
	}
	rec.Payload = payload
	return nil
}

// deleteSubRecord removes the sub-record row ahead of a replacement write.
func deleteSubRecord(ctx context.Context, ex execer, t record.MemoryType, id string) error {
	table, ok := subRecordTables[t]
	if !ok {
		return fmt.Errorf("warm: no sub-record table for type %q", t)
	}
	if _, err := ex.ExecContext(ctx, `DELETE FROM `+table+` WHERE memory_id = ?`, id); err != nil {
		return fmt.Errorf("warm: delete %s sub-record %s: %w", t, id, err)
	}
	return nil
}

func jsonColumn(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalColumn(s sql.NullString, dst any) {
	if s.Valid && s.String != "" {
		_ = json.Unmarshal([]byte(s.String), dst)
	}
}

func writeWorking(ctx context.Context, ex execer, id string, p record.Payload) error {
	wp, ok := p.(*record.WorkingPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", p)
	}
	window, err := jsonColumn(wp.ContextWindow)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO working_memories (memory_id, task_id, context_window, priority, expires_at) VALUES (?, ?, ?, ?, ?)`,
		id, wp.TaskID, window, wp.Priority, formatTimePtr(wp.ExpiresAt))
	return err
}

func readWorking(ctx context.Context, ex execer, id string) (record.Payload, error) {
	var (
		p       record.WorkingPayload
		window  sql.NullString
		taskID  sql.NullString
		expires sql.NullString
	)
	err := ex.QueryRowContext(ctx,
		`SELECT task_id, context_window, priority, expires_at FROM working_memories WHERE memory_id = ?`, id).
		Scan(&taskID, &window, &p.Priority, &expires)
	if err != nil {
		return nil, err
	}
	p.TaskID = taskID.String
	unmarshalColumn(window, &p.ContextWindow)
	p.ExpiresAt = parseTimePtr(expires)
	return &p, nil
}

func writeEpisodic(ctx context.Context, ex execer, id string, p record.Payload) error {
	ep, ok := p.(*record.EpisodicPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", p)
	}
	participants, err := jsonColumn(ep.Participants)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO episodic_memories (memory_id, event, outcome, participants, emotion, occurred_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, ep.Event, ep.Outcome, participants, ep.Emotion, formatTimePtr(nullableTime(ep.OccurredAt)))
	return err
}

func readEpisodic(ctx context.Context, ex execer, id string) (record.Payload, error) {
	var (
		p            record.EpisodicPayload
		outcome      sql.NullString
		participants sql.NullString
		emotion      sql.NullString
		occurredAt   sql.NullString
	)
	err := ex.QueryRowContext(ctx,
		`SELECT event, outcome, participants, emotion, occurred_at FROM episodic_memories WHERE memory_id = ?`, id).
		Scan(&p.Event, &outcome, &participants, &emotion, &occurredAt)
	if err != nil {
		return nil, err
	}
	p.Outcome = outcome.String
	p.Emotion = emotion.String
	unmarshalColumn(participants, &p.Participants)
	if t := parseTimePtr(occurredAt); t != nil {
		p.OccurredAt = *t
	}
	return &p, nil
}

func writeSemantic(ctx context.Context, ex execer, id string, p record.Payload) error {
	sp, ok := p.(*record.SemanticPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", p)
	}
	facts, err := jsonColumn(sp.Facts)
	if err != nil {
		return err
	}
	sources, err := jsonColumn(sp.Sources)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO semantic_memories (memory_id, facts, domain, confidence, sources) VALUES (?, ?, ?, ?, ?)`,
		id, facts, sp.Domain, sp.Confidence, sources)
	return err
}

func readSemantic(ctx context.Context, ex execer, id string) (record.Payload, error) {
	var (
		p       record.SemanticPayload
		facts   sql.NullString
		domain  sql.NullString
		sources sql.NullString
	)
	err := ex.QueryRowContext(ctx,
		`SELECT facts, domain, confidence, sources FROM semantic_memories WHERE memory_id = ?`, id).
		Scan(&facts, &domain, &p.Confidence, &sources)
	if err != nil {
		return nil, err
	}
	p.Domain = domain.String
	unmarshalColumn(facts, &p.Facts)
	unmarshalColumn(sources, &p.Sources)
	return &p, nil
}

func writeProcedural(ctx context.Context, ex execer, id string, p record.Payload) error {
	pp, ok := p.(*record.ProceduralPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", p)
	}
	steps, err := jsonColumn(pp.Steps)
	if err != nil {
		return err
	}
	prereqs, err := jsonColumn(pp.Prerequisites)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO procedural_memories (memory_id, steps, success_count, failure_count, prerequisites) VALUES (?, ?, ?, ?, ?)`,
		id, steps, pp.SuccessCount, pp.FailureCount, prereqs)
	return err
}

func readProcedural(ctx context.Context, ex execer, id string) (record.Payload, error) {
	var (
		p       record.ProceduralPayload
		steps   sql.NullString
		prereqs sql.NullString
	)
	err := ex.QueryRowContext(ctx,
		`SELECT steps, success_count, failure_count, prerequisites FROM procedural_memories WHERE memory_id = ?`, id).
		Scan(&steps, &p.SuccessCount, &p.FailureCount, &prereqs)
	if err != nil {
		return nil, err
	}
	unmarshalColumn(steps, &p.Steps)
	unmarshalColumn(prereqs, &p.Prerequisites)
	return &p, nil
}

func writeShared(ctx context.Context, ex execer, id string, p record.Payload) error {
	sp, ok := p.(*record.SharedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", p)
	}
	sharedWith, err := jsonColumn(sp.SharedWith)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO shared_memories (memory_id, source_agent_id, shared_with, visibility) VALUES (?, ?, ?, ?)`,
		id, sp.SourceAgentID, sharedWith, sp.Visibility)
	return err
}

func readShared(ctx context.Context, ex execer, id string) (record.Payload, error) {
	var (
		p          record.SharedPayload
		sharedWith sql.NullString
		visibility sql.NullString
	)
	err := ex.QueryRowContext(ctx,
		`SELECT source_agent_id, shared_with, visibility FROM shared_memories WHERE memory_id = ?`, id).
		Scan(&p.SourceAgentID, &sharedWith, &visibility)
	if err != nil {
		return nil, err
	}
	p.Visibility = visibility.String
	unmarshalColumn(sharedWith, &p.SharedWith)
	return &p, nil
}

func writeBusiness(ctx context.Context, ex execer, id string, p record.Payload) error {
	bp, ok := p.(*record.BusinessPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", p)
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO business_memories (memory_id, metric_name, value, target, trend, period) VALUES (?, ?, ?, ?, ?, ?)`,
		id, bp.MetricName, bp.Value, bp.Target, bp.Trend, bp.Period)
	return err
}

func readBusiness(ctx context.Context, ex execer, id string) (record.Payload, error) {
	var (
		p      record.BusinessPayload
		trend  sql.NullString
		period sql.NullString
	)
	err := ex.QueryRowContext(ctx,
		`SELECT metric_name, value, target, trend, period FROM business_memories WHERE memory_id = ?`, id).
		Scan(&p.MetricName, &p.Value, &p.Target, &trend, &period)
	if err != nil {
		return nil, err
	}
	p.Trend = trend.String
	p.Period = period.String
	return &p, nil
}
