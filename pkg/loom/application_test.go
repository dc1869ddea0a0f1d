package loom

import (
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toyz/loom/internal/dispatch"
	"github.com/toyz/loom/internal/errors"
	"github.com/toyz/loom/internal/events"
	"github.com/toyz/loom/internal/logging"
)

type Note struct {
	ID   int    `json:"id"`
	Body string `json:"body"`
}

type NoteCreated struct {
	Note Note
}

type NoteStore interface {
	Find(id int) (Note, bool)
	Add(n Note) Note
}

type memoryStore struct {
	mu    sync.Mutex
	notes map[int]Note
	next  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{notes: make(map[int]Note)}
}

func (s *memoryStore) Find(id int) (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	return n, ok
}

func (s *memoryStore) Add(n Note) Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	n.ID = s.next
	s.notes[n.ID] = n
	return n
}

type Clock interface {
	Now() time.Time
}

type fixedClock struct{}

func (*fixedClock) Now() time.Time { return time.Unix(0, 0).UTC() }

type AppConfig struct{}

func (c *AppConfig) Clock() Clock { return &fixedClock{} }

type NoteService struct {
	Store      NoteStore             `inject:""`
	PageSize   int                   `named:"notes.page-size"`
	Controller Lazy[*NoteController] `inject:""`
	ready      bool
}

func (s *NoteService) Init() error {
	s.ready = true
	return nil
}

type NoteController struct {
	App     *Application `inject:""`
	Clock   Clock        `inject:""`
	service *NoteService
	title   string
}

func newNoteController(service *NoteService, title string) *NoteController {
	return &NoteController{service: service, title: title}
}

func (c *NoteController) Get(id int) (Note, error) {
	n, ok := c.service.Store.Find(id)
	if !ok {
		return Note{}, ErrNotFound("note not found")
	}
	return n, nil
}

func (c *NoteController) Create(n Note) (*Response, error) {
	created := c.service.Store.Add(n)
	c.App.Publish(NoteCreated{Note: created})
	return Created(created), nil
}

func (c *NoteController) Title() string { return c.title }

type AuditLog struct {
	mu        sync.Mutex
	created   []int
	refreshed int
}

func (a *AuditLog) OnCreated(e NoteCreated) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created = append(a.created, e.Note.ID)
}

func (a *AuditLog) OnRefresh(e events.ContextRefreshed) {
	a.refreshed = e.Routes
}

type NoteMapper interface {
	Count() int
}

type countMapper struct{ n int }

func (m countMapper) Count() int { return m.n }

func declarations() []Declarer {
	return []Declarer{
		Component[*AppConfig]("//loom::configuration", "//loom::bean -Method=Clock"),
		Interface[NoteStore](),
		Component[*memoryStore]("//loom::service").Constructor(newMemoryStore),
		Component[*NoteService]("//loom::service"),
		Component[*NoteController](
			"//loom::controller -Prefix=/notes",
			"//loom::route GET /title -Handler=Title",
			"//loom::route GET /{id} -Handler=Get",
			"//loom::route POST -Handler=Create",
		).Constructor(newNoteController, NamedParam(1, "notes.title")),
		Component[*AuditLog](
			"//loom::listener -Method=OnCreated",
			"//loom::listener -Method=OnRefresh",
		),
		Mapper[NoteMapper](),
	}
}

func newApp(t *testing.T, opts ...Option) *Application {
	t.Helper()
	opts = append([]Option{
		WithLogger(logging.Discard()),
		WithProperties(map[string]string{"notes.page-size": "25", "notes.title": "Notes"}),
		WithMapperFactory(func(iface reflect.Type) (any, error) { return countMapper{n: 3}, nil }),
	}, opts...)
	app := New(opts...)
	require.NoError(t, app.Register(declarations()...))
	require.NoError(t, app.Boot())
	return app
}

func TestApplication_Boot(t *testing.T) {
	app := newApp(t)

	service, err := Resolve[*NoteService](app)
	require.NoError(t, err)
	controller, err := Resolve[*NoteController](app)
	require.NoError(t, err)

	assert.True(t, service.ready, "Init hook runs")
	assert.Equal(t, 25, service.PageSize)
	assert.Same(t, controller, service.Controller.Get())
	assert.Same(t, service, controller.service)
	assert.Same(t, app, controller.App)
	assert.Equal(t, time.Unix(0, 0).UTC(), controller.Clock.Now(), "bean result is injected")
	assert.Equal(t, "Notes", controller.title)

	store, err := Resolve[NoteStore](app)
	require.NoError(t, err)
	assert.IsType(t, &memoryStore{}, store)

	mapper, err := Resolve[NoteMapper](app)
	require.NoError(t, err)
	assert.Equal(t, 3, mapper.Count())

	audit, err := Resolve[*AuditLog](app)
	require.NoError(t, err)
	assert.Equal(t, 3, audit.refreshed)
	assert.Len(t, app.Routes(), 3)
}

func TestApplication_Dispatch(t *testing.T) {
	app := newApp(t)

	result, err := app.Dispatch(Request{Method: http.MethodPost, Path: "/notes", Body: []byte(`{"body":"hello"}`)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, result.Status)
	assert.JSONEq(t, `{"id":1,"body":"hello"}`, string(result.Payload))

	result, err = app.Dispatch(Request{Method: http.MethodGet, Path: "/notes/1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"body":"hello"}`, string(result.Payload))

	result, err = app.Dispatch(Request{Method: http.MethodGet, Path: "/notes/title"})
	require.NoError(t, err)
	assert.JSONEq(t, `"Notes"`, string(result.Payload))

	_, err = app.Dispatch(Request{Method: http.MethodGet, Path: "/notes/2"})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, StatusFor(err))

	_, err = app.Dispatch(Request{Method: http.MethodGet, Path: "/notes/two"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusFor(err))

	result, err = app.Dispatch(Request{Method: http.MethodGet, Path: "/missing"})
	require.NoError(t, err)
	assert.Equal(t, dispatch.StateUnmatched, result.State)
	assert.Empty(t, result.Payload)

	audit, err := Resolve[*AuditLog](app)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, audit.created)
}

func TestApplication_PropertyFilesAndCache(t *testing.T) {
	app := New(
		WithLogger(logging.Discard()),
		WithPropertyFiles("testdata/app.properties"),
		WithLookupCacheTTL(time.Minute),
		WithMapperFactory(func(iface reflect.Type) (any, error) { return countMapper{}, nil }),
	)
	require.NoError(t, app.Register(declarations()...))
	require.NoError(t, app.Boot())

	service, err := Resolve[*NoteService](app)
	require.NoError(t, err)
	assert.Equal(t, 10, service.PageSize)

	for i := 0; i < 2; i++ {
		_, err := app.Dispatch(Request{Method: http.MethodGet, Path: "/notes/9"})
		assert.Equal(t, http.StatusNotFound, StatusFor(err))
	}
}

func TestApplication_Lifecycle(t *testing.T) {
	app := New(WithLogger(logging.Discard()))
	_, err := app.Dispatch(Request{Method: http.MethodGet, Path: "/"})
	assert.Error(t, err, "dispatch before boot")

	require.NoError(t, app.Boot())
	assert.Error(t, app.Boot())
	assert.True(t, errors.IsCode(app.Register(Component[*AuditLog]()), errors.RegistrationErrorCode))

	var closed int
	app.Subscribe(TypeOf[events.ContextClosed](), func(event any) any {
		closed++
		return nil
	})
	require.NoError(t, app.Close())
	require.NoError(t, app.Close())
	assert.Equal(t, 1, closed)
}

type OtherStore struct{ memoryStore }

type Looper struct{ next *Looper2 }
type Looper2 struct{ prev *Looper }

func TestApplication_BootErrors(t *testing.T) {
	tests := []struct {
		name  string
		decls []Declarer
		code  errors.ErrorCode
	}{
		{
			name: "two implementations of one interface",
			decls: []Declarer{
				Interface[NoteStore](),
				Component[*memoryStore](),
				Component[*OtherStore](),
			},
			code: errors.DuplicateBindingErrorCode,
		},
		{
			name: "duplicate exact route across controllers",
			decls: []Declarer{
				Component[*AuditLog]("//loom::controller", "//loom::route GET /audit -Handler=OnRefresh -Args=body"),
				Component[*AppConfig]("//loom::controller", "//loom::route GET /audit -Handler=Clock"),
			},
			code: errors.AmbiguousMappingErrorCode,
		},
		{
			name: "constructor cycle",
			decls: []Declarer{
				Component[*Looper]().Constructor(func(n *Looper2) *Looper { return &Looper{next: n} }),
				Component[*Looper2]().Constructor(func(p *Looper) *Looper2 { return &Looper2{prev: p} }),
			},
			code: errors.CircularDependencyErrorCode,
		},
		{
			name: "missing named value",
			decls: []Declarer{
				Component[*NoteService](),
				Interface[NoteStore]().Default(TypeOf[*memoryStore]()),
			},
			code: errors.UnresolvedNamedValueErrorCode,
		},
		{
			name: "mapper without factory",
			decls: []Declarer{
				Mapper[NoteMapper](),
			},
			code: errors.UnresolvedDependencyErrorCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := New(WithLogger(logging.Discard()))
			require.NoError(t, app.Register(tt.decls...))
			err := app.Boot()
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestBoot_DuplicateRouteNamesTheRoute(t *testing.T) {
	app := New(WithLogger(logging.Discard()))
	require.NoError(t, app.Register(
		Component[*AuditLog]("//loom::controller", "//loom::route GET /audit -Handler=OnRefresh -Args=body"),
		Component[*AppConfig]("//loom::controller", "//loom::route GET /audit -Handler=Clock"),
	))

	err := app.Boot()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.RegistrationErrorCode))
	assert.True(t, errors.IsCode(err, errors.AmbiguousMappingErrorCode))
	assert.Contains(t, err.Error(), "failed to register route 'GET /audit'")
}

func TestApplication_RegisterCollectsErrors(t *testing.T) {
	app := New(WithLogger(logging.Discard()))
	err := app.Register(
		Component[*AuditLog]("//loom::listener -Method=Missing"),
		Component[*NoteController]("//loom::controller", "//loom::route GET /{id} -Handler=Title"),
		Component[*AppConfig](),
	)
	require.Error(t, err)

	var multi *errors.MultipleErrors
	require.ErrorAs(t, err, &multi)
	assert.Equal(t, 2, multi.Count())
	assert.Len(t, multi.GetByCode(errors.DescriptorErrorCode), 2)
}

func TestApplication_Metrics(t *testing.T) {
	rec := &observer{}
	app := newApp(t, WithObserver(rec))

	_, _ = app.Dispatch(Request{Method: http.MethodGet, Path: "/notes/title"})
	assert.Equal(t, []dispatch.State{dispatch.StateSerialized}, rec.states)
}

type observer struct {
	states []dispatch.State
}

func (o *observer) ObserveDispatch(route string, state dispatch.State, elapsed time.Duration) {
	o.states = append(o.states, state)
}

func TestWithLogger(t *testing.T) {
	logger := logrus.New()
	app := New(WithLogger(logger))
	assert.Same(t, logger, app.Logger())
}
