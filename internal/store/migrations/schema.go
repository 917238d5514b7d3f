// Package migrations holds the State Store's schema and the ordered
// list of migrations that bring a database file up to it (spec.md
// §4.1). Every statement is idempotent so Run is safe to call
// against a fresh file, a file created by an older binary, or a file
// that is already current.
package migrations

// schema is the baseline shape of every table the State Store owns.
// Nested collections (slices, maps) that don't need their own queries
// are kept as JSON text columns, the way the teacher keeps edge
// metadata and event payloads as JSON blobs rather than side tables.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time DATETIME NOT NULL,
    end_time DATETIME,
    status TEXT NOT NULL DEFAULT 'running',
    summary TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time);

-- Cached view of the append-only event log (internal/eventlog is the
-- source of truth; rows here exist so the store can answer queries
-- without replaying the JSONL file).
CREATE TABLE IF NOT EXISTS events (
    event_id INTEGER PRIMARY KEY,
    session_id INTEGER NOT NULL,
    timestamp DATETIME NOT NULL,
    type TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);

CREATE TABLE IF NOT EXISTS features (
    idx INTEGER PRIMARY KEY,
    category TEXT NOT NULL,
    description TEXT NOT NULL,
    steps TEXT NOT NULL DEFAULT '[]',
    passes INTEGER NOT NULL DEFAULT 0,
    priority INTEGER NOT NULL DEFAULT 3,
    failure_count INTEGER NOT NULL DEFAULT 0,
    last_worked DATETIME,
    blocked_by TEXT NOT NULL DEFAULT '[]',
    blocks TEXT NOT NULL DEFAULT '[]',
    verified_at DATETIME,
    verification_artifacts TEXT NOT NULL DEFAULT '[]',
    skip_verification INTEGER NOT NULL DEFAULT 0,
    blocked_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_features_category ON features(category);

CREATE TABLE IF NOT EXISTS checkpoint_sequences (
    session_id INTEGER PRIMARY KEY,
    next_sequence INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS checkpoints (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL,
    timestamp DATETIME NOT NULL,
    trigger_type TEXT NOT NULL,
    vcs_commit_hash TEXT NOT NULL DEFAULT '',
    feature_status_snapshot TEXT NOT NULL DEFAULT '{}',
    pending_work TEXT NOT NULL DEFAULT '[]',
    notes TEXT NOT NULL DEFAULT '',
    sequence INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_session_trigger ON checkpoints(session_id, trigger_type);

CREATE TABLE IF NOT EXISTS risk_patterns (
    pattern_id TEXT PRIMARY KEY,
    description TEXT NOT NULL,
    tool TEXT NOT NULL DEFAULT '',
    input_field TEXT NOT NULL DEFAULT '',
    input_pattern TEXT NOT NULL DEFAULT '',
    risk_level INTEGER NOT NULL,
    is_reversible INTEGER NOT NULL DEFAULT 0,
    affects_source_of_truth INTEGER NOT NULL DEFAULT 0,
    has_external_side_effects INTEGER NOT NULL DEFAULT 0,
    requires_approval INTEGER NOT NULL DEFAULT 0,
    requires_checkpoint INTEGER NOT NULL DEFAULT 0,
    mitigation TEXT NOT NULL DEFAULT '',
    is_enabled INTEGER NOT NULL DEFAULT 1,
    is_custom INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS risk_assessments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL,
    action TEXT NOT NULL,
    tool TEXT NOT NULL,
    input_summary TEXT NOT NULL DEFAULT '',
    risk_level INTEGER NOT NULL,
    is_reversible INTEGER NOT NULL DEFAULT 0,
    affects_source_of_truth INTEGER NOT NULL DEFAULT 0,
    has_external_side_effects INTEGER NOT NULL DEFAULT 0,
    concerns TEXT NOT NULL DEFAULT '[]',
    requires_approval INTEGER NOT NULL DEFAULT 0,
    requires_checkpoint INTEGER NOT NULL DEFAULT 0,
    requires_review INTEGER NOT NULL DEFAULT 0,
    mitigation TEXT NOT NULL DEFAULT '',
    timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_risk_assessments_session ON risk_assessments(session_id);

-- Autonomy config and metrics are each a singleton row keyed by name;
-- both are persisted as JSON since neither is queried by field.
CREATE TABLE IF NOT EXISTS autonomy_state (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS autonomy_decisions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL,
    action TEXT NOT NULL,
    tool TEXT NOT NULL,
    allowed INTEGER NOT NULL,
    required_level INTEGER NOT NULL,
    current_level INTEGER NOT NULL,
    effective_level INTEGER NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    alternatives TEXT NOT NULL DEFAULT '[]',
    requires_approval INTEGER NOT NULL DEFAULT 0,
    requires_checkpoint INTEGER NOT NULL DEFAULT 0,
    confidence REAL
);

CREATE TABLE IF NOT EXISTS injection_points (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL,
    type TEXT NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    options TEXT NOT NULL DEFAULT '[]',
    recommendation TEXT NOT NULL DEFAULT '',
    timeout_s INTEGER NOT NULL DEFAULT 0,
    default_on_timeout TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    response TEXT NOT NULL DEFAULT '',
    responded_by TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    responded_at DATETIME
);

CREATE TABLE IF NOT EXISTS interventions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL,
    injection_point_id INTEGER NOT NULL,
    context_signature TEXT NOT NULL,
    agent_recommendation TEXT NOT NULL DEFAULT '',
    human_response TEXT NOT NULL DEFAULT '',
    timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interventions_signature ON interventions(context_signature);

CREATE TABLE IF NOT EXISTS intervention_patterns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    context_signature TEXT NOT NULL UNIQUE,
    learned_response TEXT NOT NULL DEFAULT '',
    times_applied INTEGER NOT NULL DEFAULT 0,
    times_succeeded INTEGER NOT NULL DEFAULT 0,
    confidence REAL NOT NULL DEFAULT 0,
    auto_apply INTEGER NOT NULL DEFAULT 0,
    min_confidence_for_auto REAL NOT NULL DEFAULT 0.8
);

CREATE TABLE IF NOT EXISTS escalation_rules (
    id TEXT PRIMARY KEY,
    condition_name TEXT NOT NULL,
    severity INTEGER NOT NULL,
    injection_type TEXT NOT NULL,
    message_template TEXT NOT NULL DEFAULT '',
    suggested_actions TEXT NOT NULL DEFAULT '[]',
    auto_pause INTEGER NOT NULL DEFAULT 0,
    timeout_s INTEGER NOT NULL DEFAULT 0,
    built_in INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS failure_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL,
    category TEXT NOT NULL,
    last_successful_action TEXT NOT NULL DEFAULT '',
    failing_action TEXT NOT NULL DEFAULT '',
    error_messages TEXT NOT NULL DEFAULT '[]',
    likely_cause TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0,
    similar_past_failures TEXT NOT NULL DEFAULT '[]',
    suggested_fixes TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS hot_state (
    session_id INTEGER PRIMARY KEY,
    state TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS warm_summaries (
    session_id INTEGER PRIMARY KEY,
    accomplished TEXT NOT NULL DEFAULT '[]',
    tests_completed TEXT NOT NULL DEFAULT '[]',
    status_string TEXT NOT NULL DEFAULT '',
    next_steps TEXT NOT NULL DEFAULT '[]',
    issues_found TEXT NOT NULL DEFAULT '[]',
    issues_fixed TEXT NOT NULL DEFAULT '[]',
    notes TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS artifacts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL,
    type TEXT NOT NULL,
    path_relative TEXT NOT NULL,
    sha256_checksum TEXT NOT NULL,
    feature_index INTEGER NOT NULL DEFAULT -1,
    metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_artifacts_feature ON artifacts(feature_index);

CREATE TABLE IF NOT EXISTS decisions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL,
    type TEXT NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    choice TEXT NOT NULL DEFAULT '',
    alternatives TEXT NOT NULL DEFAULT '[]',
    rationale TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0,
    related_features TEXT NOT NULL DEFAULT '[]',
    outcome TEXT NOT NULL DEFAULT '',
    outcome_success INTEGER,
    timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_session ON decisions(session_id);

CREATE TABLE IF NOT EXISTS hypotheses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_session INTEGER NOT NULL,
    observation TEXT NOT NULL DEFAULT '',
    hypothesis_text TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0,
    evidence_for TEXT NOT NULL DEFAULT '[]',
    evidence_against TEXT NOT NULL DEFAULT '[]',
    status TEXT NOT NULL DEFAULT 'open',
    related_features TEXT NOT NULL DEFAULT '[]',
    timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hypotheses_status ON hypotheses(status);

CREATE TABLE IF NOT EXISTS cold_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL,
    keywords TEXT NOT NULL DEFAULT '[]',
    distilled_text TEXT NOT NULL DEFAULT '',
    proven_solutions TEXT NOT NULL DEFAULT '{}',
    archived_at DATETIME NOT NULL
);
`
