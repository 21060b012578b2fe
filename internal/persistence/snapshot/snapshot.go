package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version" cbor:"version"`
	WorldID string `json:"world_id" cbor:"world_id"`
	Tick    uint64 `json:"tick" cbor:"tick"`
	Day     int    `json:"day" cbor:"day"`
	// Reason is set for snapshots taken on demand, e.g. before an admin reset.
	Reason        string `json:"reason,omitempty" cbor:"reason,omitempty"`
	CreatedUnixMs int64  `json:"created_unix_ms" cbor:"created_unix_ms"`
}

type SnapshotV1 struct {
	Header Header `json:"header" cbor:"header"`

	TickRate int `json:"tick_rate_hz" cbor:"tick_rate_hz"`
	DayTicks int `json:"day_ticks" cbor:"day_ticks"`

	Territory  TerritoryV1   `json:"territory" cbor:"territory"`
	Structures []StructureV1 `json:"structures" cbor:"structures"`
	Players    []PlayerV1    `json:"players,omitempty" cbor:"players,omitempty"`
}

// TerritoryV1 is the persisted territory state. Positions are [dim, x, y, z]
// and regions [dim, x, z].
type TerritoryV1 struct {
	Factions        []FactionV1        `json:"factions" cbor:"factions"`
	Sieges          []SiegeV1          `json:"sieges" cbor:"sieges"`
	ConqueredChunks []ConqueredChunkV1 `json:"conqueredChunks" cbor:"conqueredChunks"`
	Day             int                `json:"day" cbor:"day"`
}

type FactionV1 struct {
	ID      uuid.UUID     `json:"id" cbor:"id"`
	Name    string        `json:"name" cbor:"name"`
	Color   int           `json:"color" cbor:"color"`
	Citadel [4]int        `json:"citadel" cbor:"citadel"`
	Members []MemberV1    `json:"members" cbor:"members"`
	Claims  []ClaimV1     `json:"claims" cbor:"claims"`
	Invites []uuid.UUID   `json:"invites,omitempty" cbor:"invites,omitempty"`
	Kills   []KillCountV1 `json:"kills,omitempty" cbor:"kills,omitempty"`

	Notoriety int `json:"notoriety" cbor:"notoriety"`
	Legacy    int `json:"legacy" cbor:"legacy"`
	Wealth    int `json:"wealth" cbor:"wealth"`

	LoggedInToday       bool  `json:"logged_in_today,omitempty" cbor:"logged_in_today,omitempty"`
	LastSiegeUnixMs     int64 `json:"last_siege_unix_ms,omitempty" cbor:"last_siege_unix_ms,omitempty"`
	CitadelMoveCooldown int   `json:"citadel_move_cooldown,omitempty" cbor:"citadel_move_cooldown,omitempty"`
}

type MemberV1 struct {
	Player       uuid.UUID `json:"player" cbor:"player"`
	Role         string    `json:"role" cbor:"role"`
	Flag         *[4]int   `json:"flag,omitempty" cbor:"flag,omitempty"`
	FlagCooldown int       `json:"flag_cooldown,omitempty" cbor:"flag_cooldown,omitempty"`
}

type ClaimV1 struct {
	Pos  [4]int `json:"pos" cbor:"pos"`
	Slot int    `json:"slot" cbor:"slot"`
}

type KillCountV1 struct {
	Victim uuid.UUID `json:"victim" cbor:"victim"`
	Count  int       `json:"count" cbor:"count"`
}

type SiegeV1 struct {
	Dim             int       `json:"dim" cbor:"dim"`
	X               int       `json:"x" cbor:"x"`
	Z               int       `json:"z" cbor:"z"`
	Attacker        uuid.UUID `json:"attacker" cbor:"attacker"`
	Defender        uuid.UUID `json:"defender" cbor:"defender"`
	AttackLocations [][4]int  `json:"attackLocations" cbor:"attackLocations"`
	DefendLocation  [4]int    `json:"defendLocation" cbor:"defendLocation"`
	Progress        int       `json:"progress" cbor:"progress"`
	BaseDifficulty  int       `json:"baseDifficulty" cbor:"baseDifficulty"`
	ExtraDifficulty int       `json:"extraDifficulty" cbor:"extraDifficulty"`
}

// ConqueredChunkV1 stores the protected faction as four big-endian words.
type ConqueredChunkV1 struct {
	Chunk       [3]int   `json:"chunk" cbor:"chunk"`
	Faction     [4]int32 `json:"faction" cbor:"faction"`
	RemainingMs int64    `json:"remaining_ms" cbor:"remaining_ms"`
}

type StructureV1 struct {
	Kind         string    `json:"kind" cbor:"kind"`
	Pos          [4]int    `json:"pos" cbor:"pos"`
	Faction      uuid.UUID `json:"faction" cbor:"faction"`
	AbandonTimer int       `json:"abandon_timer,omitempty" cbor:"abandon_timer,omitempty"`
	Target       *[4]int   `json:"target,omitempty" cbor:"target,omitempty"`
}

type PlayerV1 struct {
	ID   uuid.UUID `json:"id" cbor:"id"`
	Name string    `json:"name" cbor:"name"`
	Pos  [4]int    `json:"pos" cbor:"pos"`
}

// WriteSnapshot writes a JSON header line followed by the CBOR body, all
// inside one zstd stream. The file is written to a temp name and renamed.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := writeTo(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeTo(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := encodeBody(bufio.NewWriterSize(enc, 256*1024), snap); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func encodeBody(bw *bufio.Writer, snap SnapshotV1) error {
	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := encMode.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("cbor encode: %w", err)
	}
	return bw.Flush()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is repeated inside the body.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := decMode.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("cbor decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader returns only the JSON header line, without decoding the body.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
