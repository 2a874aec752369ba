package coordinator

import (
	"errors"
	"sort"

	"github.com/greenroomhq/greenroom/pkg/api"
	"github.com/greenroomhq/greenroom/pkg/com"
	"github.com/greenroomhq/greenroom/pkg/logger"
)

// Participant is one registry record: a joined client awaiting or
// undergoing inspection. Status is mutated only through the registry.
type Participant struct {
	Identity string
	Name     string
	Meta     api.ClientMeta
	Status   api.Status
	// transport address, ephemeral
	Addr com.Uid
	// the moderator holding this participant inspecting, nil when none
	Inspector com.Uid
	// join order, defines the queue position
	seq uint64
}

func (p *Participant) Info() api.ParticipantInfo {
	return api.ParticipantInfo{Identity: p.Identity, Name: p.Name, ClientMeta: p.Meta, Status: p.Status}
}

var (
	ErrNotFound    = com.ErrNotFound
	ErrWrongStatus = errors.New("wrong status")
	// another moderator already holds the participant inspecting
	ErrInspected = errors.New("already inspected")
)

// Registry owns all participant records. It is not safe for concurrent
// use: the hub serializes every access on its dispatch goroutine.
type Registry struct {
	log          *logger.Logger
	participants map[string]*Participant
	seq          uint64
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{log: log, participants: make(map[string]*Participant, 10)}
}

// Register inserts or replaces a participant with a fresh waiting record.
// A re-join counts as a fresh join and moves the identity to the back
// of the queue.
func (r *Registry) Register(rq api.JoinRequest, addr com.Uid) *Participant {
	if old, ok := r.participants[rq.Identity]; ok {
		r.log.Debug().Msgf("re-join of %v, was %v", old.Identity, old.Status)
	}
	r.seq++
	p := &Participant{
		Identity: rq.Identity,
		Name:     rq.Name,
		Meta:     rq.ClientMeta,
		Status:   api.StatusWaiting,
		Addr:     addr,
		seq:      r.seq,
	}
	r.participants[rq.Identity] = p
	return p
}

func (r *Registry) Lookup(identity string) *Participant { return r.participants[identity] }

// RemoveByTransport purges the at most one participant bound to the
// address, whatever its status, and returns it if found.
func (r *Registry) RemoveByTransport(addr com.Uid) *Participant {
	for _, p := range r.participants {
		if p.Addr == addr {
			delete(r.participants, p.Identity)
			return p
		}
	}
	return nil
}

// FindByInspector returns the participant a moderator currently inspects.
func (r *Registry) FindByInspector(mod com.Uid) *Participant {
	for _, p := range r.participants {
		if p.Status == api.StatusInspecting && p.Inspector == mod {
			return p
		}
	}
	return nil
}

// StartInspection moves waiting → inspecting on behalf of a moderator.
func (r *Registry) StartInspection(identity string, mod com.Uid) (*Participant, error) {
	p, ok := r.participants[identity]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status == api.StatusInspecting {
		return nil, ErrInspected
	}
	if p.Status != api.StatusWaiting {
		return nil, ErrWrongStatus
	}
	p.Status = api.StatusInspecting
	p.Inspector = mod
	return p, nil
}

// Finish moves inspecting → admitted/removed. Terminal per record.
func (r *Registry) Finish(identity string, status api.Status) (*Participant, error) {
	if !status.Terminal() {
		return nil, ErrWrongStatus
	}
	p, ok := r.participants[identity]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status != api.StatusInspecting {
		return nil, ErrWrongStatus
	}
	p.Status = status
	p.Inspector = com.NilUid
	return p, nil
}

// CancelInspection reverts inspecting → waiting,
// the queue position is kept.
func (r *Registry) CancelInspection(identity string) (*Participant, error) {
	p, ok := r.participants[identity]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status != api.StatusInspecting {
		return nil, ErrWrongStatus
	}
	p.Status = api.StatusWaiting
	p.Inspector = com.NilUid
	return p, nil
}

// Snapshot returns the full ordered registry image, all statuses
// included, so observers can render the whole queue state.
func (r *Registry) Snapshot() []api.ParticipantInfo {
	list := r.ordered()
	out := make([]api.ParticipantInfo, len(list))
	for i, p := range list {
		out[i] = p.Info()
	}
	return out
}

// Waiting returns the waiting participants in join order.
func (r *Registry) Waiting() []*Participant {
	var out []*Participant
	for _, p := range r.ordered() {
		if p.Status == api.StatusWaiting {
			out = append(out, p)
		}
	}
	return out
}

// NextWaiting is the earliest remaining waiting participant, or nil.
func (r *Registry) NextWaiting() *Participant {
	if w := r.Waiting(); len(w) > 0 {
		return w[0]
	}
	return nil
}

func (r *Registry) Count(status api.Status) (n int) {
	for _, p := range r.participants {
		if p.Status == status {
			n++
		}
	}
	return
}

func (r *Registry) ordered() []*Participant {
	list := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	return list
}
