package database

// Migration represents a single forward-only database migration.
type Migration struct {
	Version int
	SQL     string
}

// migrations is the list of all database migrations, applied in order.
var migrations = []Migration{
	{
		Version: 1,
		SQL: `
			-- Contacts: id is a stable integer. ids 1..LAST_SPECIAL are reserved,
			-- with SELF = 1.
			CREATE TABLE contacts (
				id INTEGER PRIMARY KEY,
				addr TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL DEFAULT '',
				origin INTEGER NOT NULL DEFAULT 0,
				blocked INTEGER NOT NULL DEFAULT 0
			);

			-- Chats: grpid is the 11-char opaque group id (NULL for 1:1 chats).
			-- ids 1..LAST_SPECIAL are reserved (DEADDROP, TO_DEADDROP, TRASH).
			CREATE TABLE chats (
				id INTEGER PRIMARY KEY,
				type TEXT NOT NULL CHECK (type IN ('single', 'group')),
				name TEXT NOT NULL DEFAULT '',
				grpid TEXT UNIQUE,
				draft_text TEXT,
				draft_timestamp INTEGER NOT NULL DEFAULT 0
			);

			CREATE TABLE chats_contacts (
				chat_id INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
				contact_id INTEGER NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
				UNIQUE (chat_id, contact_id)
			);

			CREATE TABLE leftgrps (
				grpid TEXT NOT NULL UNIQUE
			);

			CREATE TABLE msgs (
				id INTEGER PRIMARY KEY,
				rfc724_mid TEXT NOT NULL UNIQUE,
				server_folder TEXT NOT NULL DEFAULT '',
				server_uid INTEGER NOT NULL DEFAULT 0,
				chat_id INTEGER NOT NULL,
				from_id INTEGER NOT NULL,
				to_id INTEGER NOT NULL DEFAULT 0,
				timestamp INTEGER NOT NULL,
				type TEXT NOT NULL DEFAULT 'text',
				state TEXT NOT NULL DEFAULT 'UNDEFINED',
				msgrmsg INTEGER NOT NULL DEFAULT 0,
				txt TEXT NOT NULL DEFAULT '',
				txt_raw TEXT NOT NULL DEFAULT '',
				param TEXT NOT NULL DEFAULT '',
				bytes INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_msgs_chat_order ON msgs(chat_id, timestamp, id);
			CREATE INDEX idx_msgs_server ON msgs(server_folder, server_uid);

			CREATE TABLE config (
				keyname TEXT PRIMARY KEY,
				value TEXT
			);

			-- Binary transferable OpenPGP keys owned by this mailbox.
			CREATE TABLE keypairs (
				id INTEGER PRIMARY KEY,
				addr TEXT NOT NULL,
				is_default INTEGER NOT NULL DEFAULT 0,
				public_key BLOB NOT NULL,
				private_key BLOB,
				created_at INTEGER NOT NULL
			);

			-- Autocrypt peer state: one row per address we have seen an
			-- Autocrypt: header from.
			CREATE TABLE acpeerstates (
				addr TEXT PRIMARY KEY,
				last_seen INTEGER NOT NULL,
				last_seen_autocrypt INTEGER NOT NULL DEFAULT 0,
				public_key BLOB,
				fingerprint TEXT NOT NULL DEFAULT '',
				prefer_encrypt TEXT NOT NULL DEFAULT 'nopreference'
			);

			CREATE TABLE jobs (
				id INTEGER PRIMARY KEY,
				action TEXT NOT NULL,
				foreign_id INTEGER NOT NULL DEFAULT 0,
				param TEXT NOT NULL DEFAULT '',
				added_timestamp INTEGER NOT NULL,
				desired_timestamp INTEGER NOT NULL,
				tries INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_jobs_due ON jobs(desired_timestamp);

			-- Secrets (IMAP/SMTP passwords, ASM cache) when the OS keyring is
			-- unavailable; value is ciphertext from the symmetric PGP cipher.
			CREATE TABLE secrets (
				keyname TEXT PRIMARY KEY,
				ciphertext BLOB NOT NULL
			);

			-- Reserved rows: ids 1..LAST_SPECIAL must exist up front since
			-- chats_contacts enforces foreign keys against both tables, the
			-- deaddrop/trash chats are addressed by id before any real chat
			-- is ever created, and SQLite's bare INTEGER PRIMARY KEY hands out
			-- the next real id as max(id)+1 — so every id through
			-- LAST_SPECIAL must already be occupied, not just the ones with a
			-- defined meaning today, or the first real row lands inside the
			-- reserved band. The placeholder self address is overwritten once
			-- the mailbox is configured; the other placeholder contacts and
			-- chats carry no meaning beyond reserving their id.
			INSERT INTO contacts (id, addr, name, origin, blocked) VALUES
				(1, 'self@local.invalid', '', 0, 0),
				(2, 'reserved2@local.invalid', '', 0, 0),
				(3, 'reserved3@local.invalid', '', 0, 0),
				(4, 'reserved4@local.invalid', '', 0, 0),
				(5, 'reserved5@local.invalid', '', 0, 0),
				(6, 'reserved6@local.invalid', '', 0, 0),
				(7, 'reserved7@local.invalid', '', 0, 0),
				(8, 'reserved8@local.invalid', '', 0, 0),
				(9, 'reserved9@local.invalid', '', 0, 0);

			INSERT INTO chats (id, type, name) VALUES
				(1, 'single', 'Deaddrop'),
				(2, 'single', 'To deaddrop'),
				(3, 'single', 'Trash'),
				(4, 'single', 'Reserved'),
				(5, 'single', 'Reserved'),
				(6, 'single', 'Reserved'),
				(7, 'single', 'Reserved'),
				(8, 'single', 'Reserved'),
				(9, 'single', 'Reserved');
		`,
	},
}
