// Package table runs one live blackjack table: a countdown-driven round
// cycle that seated players bet into and act on between ticks.
package table

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swarm-blackjack/casino-bot/internal/cards"
	"github.com/swarm-blackjack/casino-bot/internal/ledger"
)

// settleTimeout bounds each payout credit.
const settleTimeout = 5 * time.Second

var (
	ErrNotSeated         = errors.New("not seated at this table")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWrongPhase        = errors.New("action not allowed in this phase")
	ErrWrongStatus       = errors.New("seat cannot act this round")
	ErrInvalidAmount     = errors.New("bet must be positive")
	ErrUnknownAction     = errors.New("unknown action")
	ErrClosed            = errors.New("table closed")
	// ErrSurfaceGone is returned by a Presenter when the message backing
	// the table no longer exists.
	ErrSurfaceGone = errors.New("display surface gone")
)

// Handle identifies a rendered table display. Its meaning belongs to the Presenter.
type Handle string

// Presenter draws table snapshots somewhere players can see them.
type Presenter interface {
	Render(ctx context.Context, snap Snapshot) (Handle, error)
	// Update redraws an existing display; ErrSurfaceGone means it was deleted.
	Update(ctx context.Context, h Handle, snap Snapshot) error
	Close(ctx context.Context, h Handle, location, reason string) error
}

// Settings are the per-table timings and capacity.
type Settings struct {
	MaxSeats       int
	BettingSeconds int
	ActionSeconds  int
	PayoutSeconds  int
}

func DefaultSettings() Settings {
	return Settings{
		MaxSeats:       5,
		BettingSeconds: 20,
		ActionSeconds:  20,
		PayoutSeconds:  15,
	}
}

type Options struct {
	Location  string
	Ledger    ledger.Ledger
	Presenter Presenter
	Settings  Settings
	// Deck defaults to a freshly shuffled deck.
	Deck   *cards.Deck
	Logger *zap.Logger
	// OnPhase observes every transition, cascaded ones included.
	OnPhase func(from, to Phase)
}

// Seat is one wagering slot at the table.
type Seat struct {
	PlayerID string
	Hand     *cards.Hand
	Bet      int64
	Status   Status
	// Payout is what the last settlement credited, shown during Payouts.
	Payout int64
}

// Table owns its deck, hands and seats. All mutable state is guarded by mu;
// the scheduler's Tick and the gateway's intents both take it.
type Table struct {
	mu sync.Mutex

	location  string
	settings  Settings
	ledger    ledger.Ledger
	presenter Presenter
	handle    Handle
	log       *zap.Logger
	onPhase   func(from, to Phase)

	deck       *cards.Deck
	dealer     *cards.Hand
	seats      map[string]*Seat
	order      []string
	spectators []string
	phase      Phase
	countdown  int
	round      string
	seq        uint64

	// drawMu orders display updates; drawn is the last Seq shown.
	drawMu sync.Mutex
	drawn  uint64

	active atomic.Bool
}

func New(opts Options) *Table {
	settings := opts.Settings
	if settings == (Settings{}) {
		settings = DefaultSettings()
	}
	deck := opts.Deck
	if deck == nil {
		deck = cards.NewDeck(nil)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	t := &Table{
		location:  opts.Location,
		settings:  settings,
		ledger:    opts.Ledger,
		presenter: opts.Presenter,
		log:       log.With(zap.String("location", opts.Location)),
		onPhase:   opts.OnPhase,
		deck:      deck,
		dealer:    cards.NewHand(),
		seats:     make(map[string]*Seat),
		phase:     WaitingForBets,
		countdown: settings.BettingSeconds,
	}
	t.active.Store(true)
	return t
}

// Open renders the first snapshot and keeps the handle for later updates.
func (t *Table) Open(ctx context.Context) error {
	if t.presenter == nil {
		return nil
	}
	h, err := t.presenter.Render(ctx, t.Snapshot())
	if err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	t.mu.Lock()
	t.handle = h
	t.mu.Unlock()
	return nil
}

func (t *Table) Location() string { return t.location }

func (t *Table) Handle() Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle
}

func (t *Table) Active() bool { return t.active.Load() }

// Deactivate stops the table. Later ticks and intents fail with ErrClosed.
func (t *Table) Deactivate() {
	if t.active.Swap(false) {
		t.log.Info("table deactivated")
	}
}

func (t *Table) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

func (t *Table) Countdown() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countdown
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

// Tick advances the countdown by one second, runs at most one transition
// (with its synchronous cascade) and redraws the display.
func (t *Table) Tick(ctx context.Context) error {
	if err := t.Advance(ctx); err != nil {
		return err
	}
	return t.Refresh(ctx)
}

// Advance is the state half of Tick. Payout credits ignore ctx's deadline
// and get settleTimeout each.
func (t *Table) Advance(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active.Load() {
		return ErrClosed
	}
	t.countdown--
	if t.countdown <= 0 {
		t.advance(context.WithoutCancel(ctx))
	}
	return nil
}

// Refresh redraws the display with the current state.
func (t *Table) Refresh(ctx context.Context) error {
	h, snap, err := t.current()
	if err != nil {
		return err
	}
	return t.redraw(ctx, h, snap)
}

func (t *Table) current() (Handle, Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active.Load() {
		return "", Snapshot{}, ErrClosed
	}
	return t.handle, t.snapshotLocked(), nil
}

// redraw runs without mu so a slow display never blocks intents. Updates
// are applied in Seq order; a snapshot older than the one already shown is
// dropped.
func (t *Table) redraw(ctx context.Context, h Handle, snap Snapshot) error {
	if t.presenter == nil || !t.active.Load() {
		return nil
	}
	t.drawMu.Lock()
	defer t.drawMu.Unlock()
	if snap.Seq <= t.drawn {
		return nil
	}
	if err := t.presenter.Update(ctx, h, snap); err != nil {
		t.Deactivate()
		return fmt.Errorf("update display: %w", err)
	}
	t.drawn = snap.Seq
	return nil
}

func (t *Table) setPhase(to Phase) {
	from := t.phase
	t.phase = to
	t.log.Debug("phase", zap.Stringer("from", from), zap.Stringer("to", to))
	if t.onPhase != nil {
		t.onPhase(from, to)
	}
}

// advance must be called with mu held.
func (t *Table) advance(ctx context.Context) {
	switch t.phase {
	case WaitingForBets:
		if !t.anyBet() {
			t.countdown = t.settings.BettingSeconds
			return
		}
		t.setPhase(DealingCards)
		t.dealRound()
		t.setPhase(PlayerActions)
		t.countdown = t.settings.ActionSeconds

	case PlayerActions:
		for _, id := range t.order {
			if s := t.seats[id]; s.Status == StatusPlaying {
				s.Status = StatusStand
			}
		}
		t.setPhase(DealerTurn)
		t.playDealer()
		t.setPhase(Payouts)
		t.settle(ctx)
		t.countdown = t.settings.PayoutSeconds

	case Payouts:
		for _, s := range t.seats {
			s.Hand = cards.NewHand()
			s.Bet = 0
			s.Payout = 0
			s.Status = StatusSpectating
		}
		t.setPhase(WaitingForBets)
		t.countdown = t.settings.BettingSeconds

	default:
		// DealingCards and DealerTurn never persist across ticks.
		t.log.Warn("advance from transient phase", zap.Stringer("phase", t.phase))
		t.phase = WaitingForBets
		t.countdown = t.settings.BettingSeconds
	}
}

func (t *Table) anyBet() bool {
	for _, s := range t.seats {
		if s.Bet > 0 {
			return true
		}
	}
	return false
}

// draw deals one card, rebuilding the deck if it ran dry.
func (t *Table) draw() cards.Card {
	c, err := t.deck.Deal()
	if errors.Is(err, cards.ErrEmptyDeck) {
		t.log.Warn("deck exhausted mid-round, reshuffling")
		t.deck.Reset()
		c, _ = t.deck.Deal()
	}
	return c
}

func (t *Table) dealRound() {
	t.deck.Shuffle()
	t.round = uuid.NewString()
	for _, s := range t.seats {
		s.Hand = cards.NewHand()
		s.Payout = 0
		if s.Bet > 0 {
			s.Status = StatusPlaying
		} else {
			s.Status = StatusSpectating
		}
	}
	t.dealer = cards.NewHand()
	for i := 0; i < 2; i++ {
		t.dealer.Add(t.draw())
		for _, id := range t.order {
			if s := t.seats[id]; s.Bet > 0 {
				s.Hand.Add(t.draw())
			}
		}
	}
	for _, s := range t.seats {
		if s.Bet > 0 && s.Hand.Total() == 21 {
			s.Status = StatusBlackjack
		}
	}
	t.log.Info("round dealt", zap.String("round", t.round))
}

func (t *Table) playDealer() {
	for DealerMustHit(t.dealer.Total()) {
		t.dealer.Add(t.draw())
	}
}

func (t *Table) settle(ctx context.Context) {
	dealerTotal := t.dealer.Total()
	for _, id := range t.order {
		s := t.seats[id]
		if s.Bet == 0 {
			continue
		}
		s.Payout = Payout(s.Status, s.Hand.Total(), dealerTotal, s.Bet)
		if s.Payout == 0 {
			continue
		}
		if err := t.credit(ctx, id, s.Payout); err != nil {
			t.log.Error("payout failed",
				zap.String("player", id), zap.Int64("amount", s.Payout), zap.Error(err))
		}
	}
}

func (t *Table) credit(ctx context.Context, id string, amount int64) error {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	_, err := t.ledger.Adjust(ctx, id, amount)
	return err
}

// ── Intents ───────────────────────────────────────────────────────────────────

// Join seats the identity if a seat is free, otherwise makes it a spectator.
// Joining again while spectating takes a seat that has since freed up.
func (t *Table) Join(id string) (Role, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active.Load() {
		return 0, ErrClosed
	}
	if _, ok := t.seats[id]; ok {
		return RoleSeat, nil
	}
	if len(t.seats) < t.settings.MaxSeats {
		t.spectators = remove(t.spectators, id)
		t.seats[id] = &Seat{PlayerID: id, Hand: cards.NewHand(), Status: StatusSpectating}
		t.order = append(t.order, id)
		return RoleSeat, nil
	}
	if !contains(t.spectators, id) {
		t.spectators = append(t.spectators, id)
	}
	return RoleSpectator, nil
}

// Leave detaches the identity. A live bet is forfeited. When nobody is
// left the table deactivates and its display is closed; closed reports that.
func (t *Table) Leave(ctx context.Context, id string) (closed bool, err error) {
	t.mu.Lock()
	if !t.active.Load() {
		t.mu.Unlock()
		return false, ErrClosed
	}
	_, seated := t.seats[id]
	watching := contains(t.spectators, id)
	if !seated && !watching {
		t.mu.Unlock()
		return false, ErrNotSeated
	}
	if seated {
		if s := t.seats[id]; s.Bet > 0 {
			t.log.Info("seat left with live bet", zap.String("player", id), zap.Int64("bet", s.Bet))
		}
		delete(t.seats, id)
		t.order = remove(t.order, id)
	}
	t.spectators = remove(t.spectators, id)
	empty := len(t.seats) == 0 && len(t.spectators) == 0
	if empty {
		t.Deactivate()
	}
	h := t.handle
	t.mu.Unlock()

	if !empty {
		return false, nil
	}
	if t.presenter != nil {
		if err := t.presenter.Close(ctx, h, t.location, "Table closed: no players left."); err != nil {
			t.log.Warn("close display", zap.Error(err))
		}
	}
	return true, nil
}

// PlaceBet sets the seat's wager for the coming round. A previous bet from
// the same betting window is refunded first, so the seat only needs to
// afford the difference. Returns the balance after the debit.
func (t *Table) PlaceBet(ctx context.Context, id string, amount int64) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active.Load() {
		return 0, ErrClosed
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	s, ok := t.seats[id]
	if !ok {
		return 0, ErrNotSeated
	}
	if t.phase != WaitingForBets {
		return 0, ErrWrongPhase
	}

	balance, err := t.ledger.Balance(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	if balance+s.Bet < amount {
		return balance, ErrInsufficientFunds
	}

	// Refund and debit as one adjustment so a ledger failure leaves both
	// the balance and the seat untouched.
	if delta := s.Bet - amount; delta != 0 {
		balance, err = t.ledger.Adjust(ctx, id, delta)
		if err != nil {
			return 0, fmt.Errorf("debit bet: %w", err)
		}
	}
	s.Bet = amount
	s.Status = StatusPlaying
	t.log.Debug("bet placed", zap.String("player", id), zap.Int64("amount", amount))
	return balance, nil
}

// ActResult describes an applied hit or stand.
type ActResult struct {
	// Applied is false when the identity had no seat or no bet; the
	// action was ignored.
	Applied bool
	Total   int
	Status  Status
}

func (t *Table) Act(id string, action Action) (ActResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active.Load() {
		return ActResult{}, ErrClosed
	}
	s, ok := t.seats[id]
	if !ok || s.Bet == 0 {
		return ActResult{}, nil
	}
	if t.phase != PlayerActions {
		return ActResult{}, ErrWrongPhase
	}
	if s.Status != StatusPlaying {
		return ActResult{}, ErrWrongStatus
	}
	switch action {
	case ActionHit:
		s.Hand.Add(t.draw())
		if s.Hand.Busted() {
			s.Status = StatusBusted
		}
	case ActionStand:
		s.Status = StatusStand
	default:
		return ActResult{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return ActResult{Applied: true, Total: s.Hand.Total(), Status: s.Status}, nil
}

// ── Snapshot ──────────────────────────────────────────────────────────────────

type Snapshot struct {
	Location   string     `json:"location"`
	Seq        uint64     `json:"seq"`
	Round      string     `json:"round,omitempty"`
	Phase      Phase      `json:"phase"`
	Countdown  int        `json:"countdown"`
	Active     bool       `json:"active"`
	Dealer     DealerView `json:"dealer"`
	Seats      []SeatView `json:"seats"`
	Spectators []string   `json:"spectators"`
	MaxSeats   int        `json:"maxSeats"`
	Timestamp  time.Time  `json:"timestamp"`
}

type DealerView struct {
	Cards []cards.Card `json:"cards"`
	Total int          `json:"total"`
	// Hidden means only the first card is shown.
	Hidden bool `json:"hidden"`
}

type SeatView struct {
	PlayerID string       `json:"playerId"`
	Cards    []cards.Card `json:"cards"`
	Total    int          `json:"total"`
	Bet      int64        `json:"bet"`
	Status   Status       `json:"status"`
	Payout   int64        `json:"payout"`
}

func (t *Table) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Table) snapshotLocked() Snapshot {
	t.seq++
	snap := Snapshot{
		Location:   t.location,
		Seq:        t.seq,
		Round:      t.round,
		Phase:      t.phase,
		Countdown:  t.countdown,
		Active:     t.active.Load(),
		Seats:      make([]SeatView, 0, len(t.order)),
		Spectators: append([]string{}, t.spectators...),
		MaxSeats:   t.settings.MaxSeats,
		Timestamp:  time.Now().UTC(),
	}

	dealerCards := t.dealer.Cards()
	hideHole := (t.phase == DealingCards || t.phase == PlayerActions) && len(dealerCards) > 0
	if hideHole {
		snap.Dealer = DealerView{Cards: dealerCards[:1], Hidden: true}
	} else {
		snap.Dealer = DealerView{Cards: dealerCards, Total: t.dealer.Total()}
	}

	for _, id := range t.order {
		s := t.seats[id]
		view := SeatView{PlayerID: id, Bet: s.Bet, Status: s.Status, Payout: s.Payout}
		if s.Bet > 0 {
			view.Cards = s.Hand.Cards()
			view.Total = s.Hand.Total()
		}
		snap.Seats = append(snap.Seats, view)
	}
	return snap
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
