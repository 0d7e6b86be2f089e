package semgraph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/greenresilience/orchestration/engine/domain"
	"github.com/greenresilience/orchestration/pkg/fn"
)

// Triples are stored as (:Term {kind, value})-[:TRIPLE {predicate, seq}]->(:Term).
// seq preserves load order so Match is stable.
const (
	matchCypher = `MATCH (s:Term)-[r:TRIPLE]->(o:Term)
WHERE ($sKind IS NULL OR (s.kind = $sKind AND s.value = $sValue))
  AND ($predicate IS NULL OR r.predicate = $predicate)
  AND ($oKind IS NULL OR (o.kind = $oKind AND o.value = $oValue))
RETURN s.kind AS sKind, s.value AS sValue, r.predicate AS predicate, o.kind AS oKind, o.value AS oValue
ORDER BY r.seq`

	nextSeqCypher = `MATCH ()-[r:TRIPLE]->() RETURN coalesce(max(r.seq), -1) + 1 AS next`

	loadCypher = `UNWIND $rows AS row
MERGE (s:Term {kind: row.sKind, value: row.sValue})
MERGE (o:Term {kind: row.oKind, value: row.oValue})
MERGE (s)-[r:TRIPLE {predicate: row.predicate}]->(o)
ON CREATE SET r.seq = row.seq`

	indexCypher = `CREATE INDEX term_key IF NOT EXISTS FOR (t:Term) ON (t.kind, t.value)`
)

// LoadBatchSize is the number of triples sent per UNWIND.
const LoadBatchSize = 500

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Neo4jStore is a Store backed by Neo4j.
type Neo4jStore struct {
	driver     neo4j.DriverWithContext
	database   string
	newSession func(ctx context.Context) runner // for testing
}

// NewNeo4jStore wraps a driver. An empty database selects the server default.
func NewNeo4jStore(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return &Neo4jStore{driver: driver, database: database}
}

// neo4jSessionAdapter adapts neo4j.SessionWithContext to the runner interface.
type neo4jSessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *neo4jSessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *neo4jSessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (n *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) runner {
	if n.newSession != nil {
		return n.newSession(ctx)
	}
	return &neo4jSessionAdapter{sess: n.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: n.database,
		AccessMode:   mode,
	})}
}

func termParams(prefix string, t Term, params map[string]any) {
	if t.IsZero() {
		params[prefix+"Kind"] = nil
		params[prefix+"Value"] = nil
		return
	}
	params[prefix+"Kind"] = t.Kind.String()
	params[prefix+"Value"] = t.Value
}

// Match implements Store.
func (n *Neo4jStore) Match(ctx context.Context, p Pattern) ([]Triple, error) {
	sess := n.session(ctx, neo4j.AccessModeRead)
	defer sess.Close(ctx)

	params := map[string]any{"predicate": nil}
	termParams("s", p.S, params)
	termParams("o", p.O, params)
	if !p.P.IsZero() {
		params["predicate"] = p.P.Value
	}

	res, err := sess.Run(ctx, matchCypher, params)
	if err != nil {
		return nil, &domain.GraphAccessError{Op: "match", Err: err}
	}
	var out []Triple
	for res.Next(ctx) {
		t, err := tripleFromRecord(res.Record())
		if err != nil {
			return nil, &domain.GraphAccessError{Op: "match", Err: err}
		}
		out = append(out, t)
	}
	if err := res.Err(); err != nil {
		return nil, &domain.GraphAccessError{Op: "match", Err: err}
	}
	return out, nil
}

func tripleFromRecord(rec *neo4j.Record) (Triple, error) {
	get := func(key string) (string, error) {
		v, ok := rec.Get(key)
		if !ok {
			return "", fmt.Errorf("record missing %q", key)
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("record field %q is %T, want string", key, v)
		}
		return s, nil
	}
	term := func(kindKey, valueKey string) (Term, error) {
		k, err := get(kindKey)
		if err != nil {
			return Term{}, err
		}
		kind, ok := ParseTermKind(k)
		if !ok {
			return Term{}, fmt.Errorf("unknown term kind %q", k)
		}
		v, err := get(valueKey)
		if err != nil {
			return Term{}, err
		}
		return Term{Kind: kind, Value: v}, nil
	}

	s, err := term("sKind", "sValue")
	if err != nil {
		return Triple{}, err
	}
	pred, err := get("predicate")
	if err != nil {
		return Triple{}, err
	}
	o, err := term("oKind", "oValue")
	if err != nil {
		return Triple{}, err
	}
	return Triple{S: s, P: IRI(pred), O: o}, nil
}

// Load writes triples in batches, appending after any already stored.
// Triples already present are left untouched.
func (n *Neo4jStore) Load(ctx context.Context, ts []Triple) error {
	sess := n.session(ctx, neo4j.AccessModeWrite)
	defer sess.Close(ctx)

	if _, err := sess.Run(ctx, indexCypher, nil); err != nil {
		return &domain.GraphAccessError{Op: "create index", Err: err}
	}
	res, err := sess.Run(ctx, nextSeqCypher, nil)
	if err != nil {
		return &domain.GraphAccessError{Op: "load", Err: err}
	}
	next := int64(0)
	if res.Next(ctx) {
		v, _ := res.Record().Get("next")
		i, ok := v.(int64)
		if !ok {
			return &domain.GraphAccessError{Op: "load", Err: fmt.Errorf("next seq: unexpected value %v", v)}
		}
		next = i
	}
	if err := res.Err(); err != nil {
		return &domain.GraphAccessError{Op: "load", Err: err}
	}

	for bi, batch := range fn.Chunk(ts, LoadBatchSize) {
		rows := make([]map[string]any, len(batch))
		for i, t := range batch {
			if t.S.IsZero() || t.P.Kind != KindIRI || t.O.IsZero() {
				return &domain.GraphAccessError{Op: "load", Err: fmt.Errorf("incomplete triple %s", t)}
			}
			rows[i] = map[string]any{
				"sKind":     t.S.Kind.String(),
				"sValue":    t.S.Value,
				"predicate": t.P.Value,
				"oKind":     t.O.Kind.String(),
				"oValue":    t.O.Value,
				"seq":       next + int64(bi*LoadBatchSize+i),
			}
		}
		if _, err := sess.Run(ctx, loadCypher, map[string]any{"rows": rows}); err != nil {
			return &domain.GraphAccessError{Op: fmt.Sprintf("load batch %d", bi), Err: err}
		}
	}
	return nil
}
