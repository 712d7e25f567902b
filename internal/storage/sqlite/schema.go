package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS area (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL,
    code        TEXT NOT NULL UNIQUE,
    level       INTEGER NOT NULL,
    parent_code TEXT,
    href        TEXT,
    priority    INTEGER NOT NULL DEFAULT 100,
    create_time TEXT NOT NULL DEFAULT (datetime('now')),
    update_time TEXT NOT NULL DEFAULT (datetime('now')),
    update_user TEXT,
    is_deleted  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS genre (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL,
    code        TEXT NOT NULL UNIQUE,
    level       INTEGER NOT NULL,
    parent_code TEXT,
    create_time TEXT NOT NULL DEFAULT (datetime('now')),
    update_time TEXT NOT NULL DEFAULT (datetime('now')),
    update_user TEXT,
    is_deleted  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_genre_parent_code ON genre (parent_code);

CREATE TABLE IF NOT EXISTS shop_list_summary (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    url              TEXT NOT NULL UNIQUE,
    parent_area_code TEXT,
    area             TEXT NOT NULL,
    genre            TEXT NOT NULL,
    get_count        INTEGER NOT NULL DEFAULT 0,
    skip_count       INTEGER NOT NULL DEFAULT 0,
    total_count      INTEGER NOT NULL DEFAULT 0,
    is_deleted       INTEGER NOT NULL DEFAULT 0,
    create_time      TEXT NOT NULL,
    update_time      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS shop_catlog (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    link        TEXT NOT NULL,
    area        TEXT NOT NULL,
    genre       TEXT NOT NULL,
    is_deleted  INTEGER NOT NULL DEFAULT 0,
    create_time TEXT NOT NULL,
    update_time TEXT NOT NULL,
    UNIQUE (link, area, genre)
);

CREATE TABLE IF NOT EXISTS shops (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    name         TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL UNIQUE,
    score        TEXT NOT NULL DEFAULT '',
    reviews      TEXT NOT NULL DEFAULT '',
    prefecture   TEXT NOT NULL DEFAULT '',
    city         TEXT NOT NULL DEFAULT '',
    town         TEXT NOT NULL DEFAULT '',
    detail       TEXT NOT NULL DEFAULT '',
    full_address TEXT NOT NULL DEFAULT '',
    phone        TEXT NOT NULL DEFAULT '',
    category     TEXT NOT NULL DEFAULT '',
    budget       TEXT NOT NULL DEFAULT '',
    payment      TEXT NOT NULL DEFAULT '',
    seats        TEXT NOT NULL DEFAULT '',
    open_date    TEXT NOT NULL DEFAULT '',
    area         TEXT NOT NULL DEFAULT '',
    genre        TEXT NOT NULL DEFAULT '',
    is_deleted   INTEGER NOT NULL DEFAULT 0,
    create_time  TEXT NOT NULL,
    update_time  TEXT NOT NULL
);
`
