package storage

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS flights (
    id           TEXT PRIMARY KEY,
    started_at   TIMESTAMP NOT NULL,
    descriptor   TEXT NOT NULL,
    system_id    INTEGER NOT NULL,
    component_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS telemetry (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    flight_id         TEXT NOT NULL REFERENCES flights(id),
    timestamp         TIMESTAMP NOT NULL,
    latitude          REAL,
    longitude         REAL,
    altitude          REAL,
    heading           REAL,
    groundspeed       REAL,
    battery_voltage   REAL,
    battery_remaining REAL,
    mode              TEXT,
    armed             INTEGER NOT NULL,
    system_status     TEXT
);
`

const initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_telemetry_flight_time
    ON telemetry (flight_id, timestamp);
`

const (
	insertFlightSQL = `
INSERT INTO flights (id,
                     started_at,
                     descriptor,
                     system_id,
                     component_id)
VALUES (?, ?, ?, ?, ?)`

	selectFlightsSQL = `
SELECT
    id,
    started_at,
    descriptor,
    system_id,
    component_id
FROM flights
ORDER BY started_at`

	insertTelemetrySQL = `
INSERT INTO telemetry (flight_id,
                       timestamp,
                       latitude,
                       longitude,
                       altitude,
                       heading,
                       groundspeed,
                       battery_voltage,
                       battery_remaining,
                       mode,
                       armed,
                       system_status)
VALUES `

	selectTelemetrySQL = `
SELECT
    timestamp,
    latitude,
    longitude,
    altitude,
    heading,
    groundspeed,
    battery_voltage,
    battery_remaining,
    mode,
    armed,
    system_status
FROM telemetry
WHERE
    flight_id = ?
ORDER BY timestamp`
)
