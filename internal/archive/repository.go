package archive

import (
    "context"
    "database/sql"
    "encoding/json"
    "fmt"
    "strings"
    "time"

    _ "github.com/lib/pq"
    "go.uber.org/zap"

    "github.com/park285/rps-room-server/internal/obslog"
    "github.com/park285/rps-room-server/internal/rps"
)

const schema = `CREATE TABLE IF NOT EXISTS rps_games (
    room_id        TEXT        NOT NULL,
    game_number    INTEGER     NOT NULL,
    mode           TEXT        NOT NULL,
    first_id       TEXT        NOT NULL,
    first_name     TEXT        NOT NULL,
    second_id      TEXT        NOT NULL,
    second_name    TEXT        NOT NULL,
    winner_id      TEXT        NOT NULL,
    score_first    INTEGER     NOT NULL,
    score_second   INTEGER     NOT NULL,
    rounds         JSONB       NOT NULL,
    transcript     TEXT        NOT NULL,
    started_at     TIMESTAMPTZ NOT NULL,
    ended_at       TIMESTAMPTZ NOT NULL,
    duration_ms    BIGINT      NOT NULL,
    PRIMARY KEY (room_id, game_number)
)`

// Repository stores finished games in Postgres.
type Repository struct {
    db    *sql.DB
    rules rps.Rules
    log   *zap.Logger
}

func NewRepository(databaseURL string, rules rps.Rules) (*Repository, error) {
    if strings.TrimSpace(databaseURL) == "" {
        return nil, fmt.Errorf("DATABASE_URL is required")
    }
    db, err := sql.Open("postgres", databaseURL)
    if err != nil {
        return nil, err
    }
    db.SetMaxOpenConns(8)
    db.SetMaxIdleConns(4)
    db.SetConnMaxLifetime(30 * time.Minute)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := db.PingContext(ctx); err != nil {
        _ = db.Close()
        return nil, err
    }
    return &Repository{db: db, rules: rules, log: obslog.L()}, nil
}

func (r *Repository) Close() error {
    if r == nil || r.db == nil { return nil }
    return r.db.Close()
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
    if r == nil || r.db == nil { return nil }
    _, err := r.db.ExecContext(ctx, schema)
    return err
}

// SaveGame upserts one finished game. The room is replayed first; a mismatch
// is logged and the stored state is archived as is.
func (r *Repository) SaveGame(ctx context.Context, room *rps.Room, gameNumber int) error {
    if r == nil || r.db == nil || room == nil {
        return nil
    }
    if err := rps.Verify(room, r.rules); err != nil {
        r.log.Error("archive_replay_mismatch", zap.String("room_id", room.ID), zap.Int("game", gameNumber), zap.Error(err))
    }
    rec, err := buildRecord(room, gameNumber)
    if err != nil {
        return err
    }

    q := `INSERT INTO rps_games (
        room_id, game_number, mode,
        first_id, first_name, second_id, second_name,
        winner_id, score_first, score_second,
        rounds, transcript, started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
      ) ON CONFLICT (room_id, game_number) DO UPDATE SET
        mode=EXCLUDED.mode,
        first_id=EXCLUDED.first_id,
        first_name=EXCLUDED.first_name,
        second_id=EXCLUDED.second_id,
        second_name=EXCLUDED.second_name,
        winner_id=EXCLUDED.winner_id,
        score_first=EXCLUDED.score_first,
        score_second=EXCLUDED.score_second,
        rounds=EXCLUDED.rounds,
        transcript=EXCLUDED.transcript,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

    _, err = r.db.ExecContext(ctx, q,
        rec.RoomID, rec.GameNumber, rec.Mode,
        rec.FirstID, rec.FirstName, rec.SecondID, rec.SecondName,
        rec.WinnerID, rec.ScoreFirst, rec.ScoreSecond,
        rec.Rounds, rec.Transcript, rec.StartedAt, rec.EndedAt, rec.DurationMs,
    )
    return err
}

type record struct {
    RoomID      string
    GameNumber  int
    Mode        string
    FirstID     string
    FirstName   string
    SecondID    string
    SecondName  string
    WinnerID    string
    ScoreFirst  int
    ScoreSecond int
    Rounds      string
    Transcript  string
    StartedAt   time.Time
    EndedAt     time.Time
    DurationMs  int64
}

func buildRecord(room *rps.Room, gameNumber int) (record, error) {
    g, err := room.Game(gameNumber)
    if err != nil {
        return record{}, err
    }
    if g.State != rps.GameOver {
        return record{}, fmt.Errorf("game %d in room %s is not over", g.Number, room.ID)
    }
    if room.SecondPlayer == nil {
        return record{}, fmt.Errorf("room %s has no second player", room.ID)
    }
    rounds, err := json.Marshal(g.Rounds)
    if err != nil {
        return record{}, err
    }
    ended := g.StartTime
    if g.FinishTime != nil { ended = *g.FinishTime }
    duration := ended.Sub(g.StartTime).Milliseconds()
    if duration < 0 { duration = 0 }

    return record{
        RoomID:      room.ID,
        GameNumber:  g.Number,
        Mode:        string(room.Mode),
        FirstID:     room.FirstPlayer.ID,
        FirstName:   room.FirstPlayer.Name,
        SecondID:    room.SecondPlayer.ID,
        SecondName:  room.SecondPlayer.Name,
        WinnerID:    g.Result.WinnerID,
        ScoreFirst:  g.Result.ScoreFirst,
        ScoreSecond: g.Result.ScoreSecond,
        Rounds:      string(rounds),
        Transcript:  transcript(room, g),
        StartedAt:   g.StartTime,
        EndedAt:     ended,
        DurationMs:  duration,
    }, nil
}

// transcript renders a game as numbered rounds of "first-second" letter
// pairs, replays included, followed by the final score.
//
//	[Players "Alice" "Bob"]
//	1. R-R P-R 2. S-P 3. P-R 3-0
func transcript(room *rps.Room, g *rps.Game) string {
    var b strings.Builder
    b.WriteString(fmt.Sprintf("[Players \"%s\" \"%s\"]\n", sanitize(room.FirstPlayer.Name), sanitize(room.SecondPlayer.Name)))
    for _, rd := range g.Rounds {
        b.WriteString(fmt.Sprintf("%d.", rd.Number))
        for i := 0; i+1 < len(rd.Turns); i += 2 {
            a, c := rd.Turns[i], rd.Turns[i+1]
            if a.PlayerID != room.FirstPlayer.ID { a, c = c, a }
            b.WriteString(" " + letter(a.Choice) + "-" + letter(c.Choice))
        }
        b.WriteString(" ")
    }
    b.WriteString(fmt.Sprintf("%d-%d", g.Result.ScoreFirst, g.Result.ScoreSecond))
    return b.String()
}

func letter(c rps.Choice) string {
    if !c.Valid() { return "?" }
    return c.String()[:1]
}

func sanitize(s string) string {
    s = strings.ReplaceAll(s, "\\", " ")
    s = strings.ReplaceAll(s, "\"", "'")
    return strings.TrimSpace(s)
}
