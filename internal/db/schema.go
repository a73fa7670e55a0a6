package db

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL,                       -- admin|coordinator|teacher|student
  display_name TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL DEFAULT '',
  last_login_at INTEGER,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS programs (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  coordinator_id TEXT REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS courses (
  id TEXT PRIMARY KEY,
  program_id TEXT NOT NULL REFERENCES programs(id),
  title TEXT NOT NULL,
  teacher_id TEXT REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS enrollments (
  student_id TEXT NOT NULL REFERENCES users(id),
  course_id TEXT NOT NULL REFERENCES courses(id),
  enrolled_at INTEGER NOT NULL,
  PRIMARY KEY (student_id, course_id)
);

CREATE TABLE IF NOT EXISTS learning_outcomes (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  type TEXT NOT NULL,                       -- ILO|PLO|CLO
  blooms_level TEXT NOT NULL,
  program_id TEXT,
  course_id TEXT,
  version INTEGER NOT NULL DEFAULT 1,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_by TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS outcome_mappings (
  source_outcome_id TEXT NOT NULL REFERENCES learning_outcomes(id),
  target_outcome_id TEXT NOT NULL REFERENCES learning_outcomes(id),
  weight REAL NOT NULL,
  created_by TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (source_outcome_id, target_outcome_id)
);

CREATE TABLE IF NOT EXISTS assignments (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL REFERENCES courses(id),
  teacher_id TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL,
  total_points REAL NOT NULL,
  published_at INTEGER NOT NULL,
  due_at INTEGER NOT NULL,
  rubric_json TEXT NOT NULL,                -- criteria snapshot
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rubric_criteria (
  id TEXT NOT NULL,
  assignment_id TEXT NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
  outcome_id TEXT NOT NULL REFERENCES learning_outcomes(id),
  description TEXT NOT NULL DEFAULT '',
  max_points REAL NOT NULL,
  weight REAL NOT NULL DEFAULT 1,
  position INTEGER NOT NULL,
  PRIMARY KEY (assignment_id, id)
);

CREATE TABLE IF NOT EXISTS student_submissions (
  id TEXT PRIMARY KEY,
  assignment_id TEXT NOT NULL REFERENCES assignments(id),
  student_id TEXT NOT NULL,
  submitted_at INTEGER NOT NULL,
  total_score REAL,
  feedback TEXT NOT NULL DEFAULT '',
  graded_at INTEGER,
  graded_by TEXT,
  UNIQUE (assignment_id, student_id)
);

CREATE TABLE IF NOT EXISTS grades (
  id TEXT PRIMARY KEY,
  submission_id TEXT NOT NULL UNIQUE REFERENCES student_submissions(id),
  assignment_id TEXT NOT NULL,
  student_id TEXT NOT NULL,
  criteria_json TEXT NOT NULL,
  total_score REAL NOT NULL,
  max_score REAL NOT NULL,
  score_percent INTEGER NOT NULL,
  feedback TEXT NOT NULL DEFAULT '',
  graded_by TEXT NOT NULL,
  graded_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS grade_amendments (
  id TEXT PRIMARY KEY,
  grade_id TEXT NOT NULL REFERENCES grades(id),
  revision INTEGER NOT NULL,
  criteria_json TEXT NOT NULL,
  total_score REAL NOT NULL,
  score_percent INTEGER NOT NULL,
  reason TEXT NOT NULL,
  amended_by TEXT NOT NULL,
  amended_at INTEGER NOT NULL,
  UNIQUE (grade_id, revision)
);

CREATE TABLE IF NOT EXISTS student_performance (
  student_id TEXT NOT NULL,
  outcome_id TEXT NOT NULL,
  average_score REAL NOT NULL,
  total_submissions INTEGER NOT NULL,
  last_updated INTEGER NOT NULL,
  PRIMARY KEY (student_id, outcome_id)
);

CREATE TABLE IF NOT EXISTS student_progress (
  student_id TEXT PRIMARY KEY,
  xp INTEGER NOT NULL DEFAULT 0,
  level INTEGER NOT NULL DEFAULT 1,
  current_streak INTEGER NOT NULL DEFAULT 0,
  longest_streak INTEGER NOT NULL DEFAULT 0,
  last_activity_date TEXT NOT NULL DEFAULT '', -- YYYY-MM-DD (UTC)
  total_badges INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS badge_templates (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  requirements_json TEXT NOT NULL,
  xp_reward INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS student_badges (
  id TEXT PRIMARY KEY,
  student_id TEXT NOT NULL,
  badge_template_id TEXT NOT NULL REFERENCES badge_templates(id),
  awarded_at INTEGER NOT NULL,
  UNIQUE (student_id, badge_template_id)
);

CREATE TABLE IF NOT EXISTS journal_entries (
  id TEXT PRIMARY KEY,
  student_id TEXT NOT NULL,
  body TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS academic_alerts (
  id TEXT PRIMARY KEY,
  student_id TEXT NOT NULL,
  alert_type TEXT NOT NULL,
  priority TEXT NOT NULL,
  status TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL DEFAULT '',
  context_json TEXT NOT NULL DEFAULT '{}',
  assigned_to TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  acknowledged_at INTEGER,
  acknowledged_by TEXT,
  resolved_at INTEGER,
  resolved_by TEXT,
  dismissed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_alerts_student_type ON academic_alerts (student_id, alert_type, created_at);

CREATE TABLE IF NOT EXISTS alert_notifications (
  id TEXT PRIMARY KEY,
  alert_id TEXT NOT NULL REFERENCES academic_alerts(id),
  user_id TEXT NOT NULL,
  role TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  delivered_at INTEGER,
  read_at INTEGER,
  UNIQUE (alert_id, user_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,                        -- e.g., GradeCreated
  key TEXT NOT NULL,                        -- natural key: gradeID
  data TEXT NOT NULL,                       -- JSON payload
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL,
  display_name TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL DEFAULT '',
  last_login_at BIGINT,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS programs (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  coordinator_id TEXT REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS courses (
  id TEXT PRIMARY KEY,
  program_id TEXT NOT NULL REFERENCES programs(id),
  title TEXT NOT NULL,
  teacher_id TEXT REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS enrollments (
  student_id TEXT NOT NULL REFERENCES users(id),
  course_id TEXT NOT NULL REFERENCES courses(id),
  enrolled_at BIGINT NOT NULL,
  PRIMARY KEY (student_id, course_id)
);

CREATE TABLE IF NOT EXISTS learning_outcomes (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  type TEXT NOT NULL,
  blooms_level TEXT NOT NULL,
  program_id TEXT,
  course_id TEXT,
  version INTEGER NOT NULL DEFAULT 1,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_by TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS outcome_mappings (
  source_outcome_id TEXT NOT NULL REFERENCES learning_outcomes(id),
  target_outcome_id TEXT NOT NULL REFERENCES learning_outcomes(id),
  weight DOUBLE PRECISION NOT NULL,
  created_by TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  PRIMARY KEY (source_outcome_id, target_outcome_id)
);

CREATE TABLE IF NOT EXISTS assignments (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL REFERENCES courses(id),
  teacher_id TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL,
  total_points DOUBLE PRECISION NOT NULL,
  published_at BIGINT NOT NULL,
  due_at BIGINT NOT NULL,
  rubric_json TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS rubric_criteria (
  id TEXT NOT NULL,
  assignment_id TEXT NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
  outcome_id TEXT NOT NULL REFERENCES learning_outcomes(id),
  description TEXT NOT NULL DEFAULT '',
  max_points DOUBLE PRECISION NOT NULL,
  weight DOUBLE PRECISION NOT NULL DEFAULT 1,
  position INTEGER NOT NULL,
  PRIMARY KEY (assignment_id, id)
);

CREATE TABLE IF NOT EXISTS student_submissions (
  id TEXT PRIMARY KEY,
  assignment_id TEXT NOT NULL REFERENCES assignments(id),
  student_id TEXT NOT NULL,
  submitted_at BIGINT NOT NULL,
  total_score DOUBLE PRECISION,
  feedback TEXT NOT NULL DEFAULT '',
  graded_at BIGINT,
  graded_by TEXT,
  UNIQUE (assignment_id, student_id)
);

CREATE TABLE IF NOT EXISTS grades (
  id TEXT PRIMARY KEY,
  submission_id TEXT NOT NULL UNIQUE REFERENCES student_submissions(id),
  assignment_id TEXT NOT NULL,
  student_id TEXT NOT NULL,
  criteria_json TEXT NOT NULL,
  total_score DOUBLE PRECISION NOT NULL,
  max_score DOUBLE PRECISION NOT NULL,
  score_percent INTEGER NOT NULL,
  feedback TEXT NOT NULL DEFAULT '',
  graded_by TEXT NOT NULL,
  graded_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS grade_amendments (
  id TEXT PRIMARY KEY,
  grade_id TEXT NOT NULL REFERENCES grades(id),
  revision INTEGER NOT NULL,
  criteria_json TEXT NOT NULL,
  total_score DOUBLE PRECISION NOT NULL,
  score_percent INTEGER NOT NULL,
  reason TEXT NOT NULL,
  amended_by TEXT NOT NULL,
  amended_at BIGINT NOT NULL,
  UNIQUE (grade_id, revision)
);

CREATE TABLE IF NOT EXISTS student_performance (
  student_id TEXT NOT NULL,
  outcome_id TEXT NOT NULL,
  average_score DOUBLE PRECISION NOT NULL,
  total_submissions INTEGER NOT NULL,
  last_updated BIGINT NOT NULL,
  PRIMARY KEY (student_id, outcome_id)
);

CREATE TABLE IF NOT EXISTS student_progress (
  student_id TEXT PRIMARY KEY,
  xp INTEGER NOT NULL DEFAULT 0,
  level INTEGER NOT NULL DEFAULT 1,
  current_streak INTEGER NOT NULL DEFAULT 0,
  longest_streak INTEGER NOT NULL DEFAULT 0,
  last_activity_date TEXT NOT NULL DEFAULT '',
  total_badges INTEGER NOT NULL DEFAULT 0,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS badge_templates (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  requirements_json TEXT NOT NULL,
  xp_reward INTEGER NOT NULL DEFAULT 0,
  is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS student_badges (
  id TEXT PRIMARY KEY,
  student_id TEXT NOT NULL,
  badge_template_id TEXT NOT NULL REFERENCES badge_templates(id),
  awarded_at BIGINT NOT NULL,
  UNIQUE (student_id, badge_template_id)
);

CREATE TABLE IF NOT EXISTS journal_entries (
  id TEXT PRIMARY KEY,
  student_id TEXT NOT NULL,
  body TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS academic_alerts (
  id TEXT PRIMARY KEY,
  student_id TEXT NOT NULL,
  alert_type TEXT NOT NULL,
  priority TEXT NOT NULL,
  status TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL DEFAULT '',
  context_json TEXT NOT NULL DEFAULT '{}',
  assigned_to TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL,
  acknowledged_at BIGINT,
  acknowledged_by TEXT,
  resolved_at BIGINT,
  resolved_by TEXT,
  dismissed_at BIGINT
);
CREATE INDEX IF NOT EXISTS idx_alerts_student_type ON academic_alerts (student_id, alert_type, created_at);

CREATE TABLE IF NOT EXISTS alert_notifications (
  id TEXT PRIMARY KEY,
  alert_id TEXT NOT NULL REFERENCES academic_alerts(id),
  user_id TEXT NOT NULL,
  role TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  delivered_at BIGINT,
  read_at BIGINT,
  UNIQUE (alert_id, user_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
