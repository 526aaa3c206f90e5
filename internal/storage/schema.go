package storage

// Timestamps are stored as UTC unix milliseconds so that range comparisons
// and ordering on due_at are plain integer comparisons.
const schema = `
-- The 'decks' table groups cards. A deck with a source is synced from a
-- local directory or a git repository of markdown files.
CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    complexity TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    last_synced INTEGER,
    created_at INTEGER NOT NULL
);

-- The 'cards' table stores each flashcard together with its scheduling state.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL,
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    explanation_eli5 TEXT NOT NULL DEFAULT '',
    explanation_eli10 TEXT NOT NULL DEFAULT '',
    mnemonic TEXT NOT NULL DEFAULT '',
    repetition_count INTEGER NOT NULL DEFAULT 0 CHECK (repetition_count >= 0),
    ease_factor REAL NOT NULL DEFAULT 2.5,
    interval_days INTEGER NOT NULL DEFAULT 0 CHECK (interval_days >= 0),
    due_at INTEGER NOT NULL,
    last_reviewed_at INTEGER,
    lapse_count INTEGER NOT NULL DEFAULT 0 CHECK (lapse_count >= 0),
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    FOREIGN KEY(deck_id) REFERENCES decks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_cards_due ON cards(due_at, id);
CREATE INDEX IF NOT EXISTS idx_cards_deck_due ON cards(deck_id, due_at, id);
-- A deck holds each question and answer once, compared after normalization.
CREATE UNIQUE INDEX IF NOT EXISTS idx_cards_content ON cards(deck_id, content_hash);

-- The 'review_logs' table keeps the history of every recorded review.
CREATE TABLE IF NOT EXISTS review_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id TEXT NOT NULL,
    rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 4),
    prev_interval INTEGER NOT NULL,
    interval_days INTEGER NOT NULL,
    ease_factor REAL NOT NULL,
    reviewed_at INTEGER NOT NULL,

    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_review_logs_reviewed ON review_logs(reviewed_at);
`
