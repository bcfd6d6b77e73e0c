package backendstub

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-chat/internal/domain"
)

// user is a seeded account the stub can authenticate.
type user struct {
	ID           string
	Name         string
	Email        string
	Company      string
	PasswordHash string
	Role         domain.Role
}

type ticketRecord struct {
	id       string
	subject  string
	category string
	priority domain.TicketPriority
	status   domain.TicketStatus
	creator  domain.Creator
	sellerID string
	updated  time.Time
	messages []domain.Message
	typing   map[domain.Role]domain.TypingState
}

// memoryStore holds the stub's world. Everything lives in process; the
// emulator is deliberately free of external services so tests can spin
// it up on a loopback listener.
type memoryStore struct {
	mu      sync.Mutex
	users   map[string]*user // by email
	tickets map[string]*ticketRecord
	order   []string
	files   map[string]storedFile
}

type storedFile struct {
	data        []byte
	contentType string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:   make(map[string]*user),
		tickets: make(map[string]*ticketRecord),
		files:   make(map[string]storedFile),
	}
}

func (m *memoryStore) addUser(u *user) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Email] = u
}

func (m *memoryStore) userByEmail(email string) (*user, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	return u, ok
}

func (m *memoryStore) createTicket(seller *user, subject, category string, priority domain.TicketPriority, text string, attachments []domain.Attachment) domain.Ticket {
	now := time.Now().UTC()
	rec := &ticketRecord{
		id:       uuid.NewString(),
		subject:  subject,
		category: category,
		priority: priority,
		status:   domain.TicketStatusOpen,
		creator: domain.Creator{
			CompanyName: seller.Company,
			FullName:    seller.Name,
			Email:       seller.Email,
		},
		sellerID: seller.ID,
		updated:  now,
		typing:   make(map[domain.Role]domain.TypingState),
	}

	m.mu.Lock()
	m.tickets[rec.id] = rec
	m.order = append(m.order, rec.id)
	m.mu.Unlock()

	m.appendMessage(rec.id, seller.ID, domain.RoleSeller, text, attachments, false)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.projectLocked(rec, domain.RoleSeller)
}

func (m *memoryStore) get(ticketID string) (*ticketRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tickets[ticketID]
	return rec, ok
}

// listFilter mirrors the admin list query parameters.
type listFilter struct {
	status   string
	priority string
	category string
	search   string
}

func (m *memoryStore) list(viewer domain.Role, sellerID string, filter listFilter) []domain.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Ticket, 0, len(m.order))
	for _, id := range m.order {
		rec := m.tickets[id]
		if viewer == domain.RoleSeller && rec.sellerID != sellerID {
			continue
		}
		if viewer == domain.RoleAdmin && !matchFilter(rec, filter) {
			continue
		}
		out = append(out, m.projectLocked(rec, viewer))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func matchFilter(rec *ticketRecord, filter listFilter) bool {
	if filter.status != "" && string(rec.status) != filter.status {
		return false
	}
	if filter.priority != "" && string(rec.priority) != filter.priority {
		return false
	}
	if filter.category != "" && rec.category != filter.category {
		return false
	}
	if filter.search != "" {
		needle := strings.ToLower(filter.search)
		if !strings.Contains(strings.ToLower(rec.subject), needle) &&
			!strings.Contains(strings.ToLower(rec.creator.CompanyName), needle) {
			return false
		}
	}
	return true
}

// projectLocked builds the viewer-specific ticket projection. Unread
// and last_message depend on which side is looking.
func (m *memoryStore) projectLocked(rec *ticketRecord, viewer domain.Role) domain.Ticket {
	unread := 0
	last := ""
	for _, msg := range rec.messages {
		if viewer == domain.RoleSeller && msg.IsInternal {
			continue
		}
		last = msg.Body
		if msg.SenderRole == viewer.Opposite() && !msg.IsRead {
			unread++
		}
	}
	return domain.Ticket{
		ID:          rec.id,
		Subject:     rec.subject,
		Category:    rec.category,
		Priority:    rec.priority,
		Status:      rec.status,
		UnreadCount: unread,
		LastMessage: last,
		UpdatedAt:   rec.updated,
		Creator:     rec.creator,
	}
}

func (m *memoryStore) appendMessage(ticketID, senderID string, role domain.Role, text string, attachments []domain.Attachment, internal bool) (domain.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tickets[ticketID]
	if !ok {
		return domain.Message{}, false
	}
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	now := time.Now().UTC()
	msg := domain.Message{
		ID:          uuid.NewString(),
		TicketID:    ticketID,
		SenderID:    senderID,
		SenderRole:  role,
		Body:        text,
		Attachments: attachments,
		IsInternal:  internal,
		CreatedAt:   now,
	}
	rec.messages = append(rec.messages, msg)
	rec.updated = now
	// A seller message reopens the waiting loop; an admin reply flips
	// the ticket to waiting-on-seller.
	if rec.status != domain.TicketStatusClosed {
		if role == domain.RoleAdmin && !internal {
			rec.status = domain.TicketStatusWaiting
		} else if role == domain.RoleSeller {
			rec.status = domain.TicketStatusActive
		}
	}
	return msg, true
}

// page returns one page of messages visible to the viewer, ascending by
// time, offset 0 being the newest page.
func (m *memoryStore) page(ticketID string, viewer domain.Role, includeInternal bool, limit, offset int) (msgs []domain.Message, hasMore, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, exists := m.tickets[ticketID]
	if !exists {
		return nil, false, false
	}

	visible := make([]domain.Message, 0, len(rec.messages))
	for _, msg := range rec.messages {
		if msg.IsInternal && (viewer == domain.RoleSeller || !includeInternal) {
			continue
		}
		visible = append(visible, msg)
	}

	if limit <= 0 {
		limit = 10
	}
	end := len(visible) - offset
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	page := make([]domain.Message, end-start)
	copy(page, visible[start:end])
	return page, start > 0, true
}

func (m *memoryStore) markRead(ticketID string, reader domain.Role, messageIDs []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tickets[ticketID]
	if !ok {
		return false
	}

	wanted := map[string]bool{}
	for _, id := range messageIDs {
		wanted[id] = true
	}
	now := time.Now().UTC()
	for i := range rec.messages {
		msg := &rec.messages[i]
		if msg.SenderRole != reader.Opposite() || msg.IsRead {
			continue
		}
		if len(wanted) > 0 && !wanted[msg.ID] {
			continue
		}
		msg.IsRead = true
		readAt := now
		msg.ReadAt = &readAt
	}
	return true
}

func (m *memoryStore) setTyping(ticketID string, role domain.Role, name string, isTyping bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tickets[ticketID]
	if !ok {
		return false
	}
	rec.typing[role] = domain.TypingState{
		UserName:      name,
		IsTyping:      isTyping,
		LastRenewedAt: time.Now().UTC(),
	}
	return true
}

func (m *memoryStore) getTyping(ticketID string, viewer domain.Role) (domain.TypingState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tickets[ticketID]
	if !ok {
		return domain.TypingState{}, false
	}
	return rec.typing[viewer.Opposite()], true
}

func (m *memoryStore) setStatus(ticketID string, status domain.TicketStatus) (domain.Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, false
	}
	rec.status = status
	rec.updated = time.Now().UTC()
	return m.projectLocked(rec, domain.RoleAdmin), true
}

func (m *memoryStore) setPriority(ticketID string, priority domain.TicketPriority) (domain.Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, false
	}
	rec.priority = priority
	rec.updated = time.Now().UTC()
	return m.projectLocked(rec, domain.RoleAdmin), true
}

func (m *memoryStore) saveFile(name, contentType string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = storedFile{data: data, contentType: contentType}
}

func (m *memoryStore) file(name string) (storedFile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[name]
	return f, ok
}
