package container

import (
	stderrors "errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toyz/loom/internal/descriptor"
	"github.com/toyz/loom/internal/errors"
)

func declare(t *testing.T, c *Container, decl descriptor.Declaration) *descriptor.Component {
	t.Helper()
	component, err := descriptor.Describe(decl)
	require.NoError(t, err)
	c.Declare(component)
	return component
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

type Repository struct {
	URL string `named:"db.url"`
}

type Service struct {
	Repo *Repository `inject:""`
}

func TestResolve_Singleton(t *testing.T) {
	c := New(nil)
	c.RegisterNamed("db.url", "memory://")

	first, err := Resolve[*Service](c)
	require.NoError(t, err)
	second, err := Resolve[*Service](c)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Same(t, first.Repo, second.Repo)
	assert.Equal(t, "memory://", first.Repo.URL)

	repo, err := Resolve[*Repository](c)
	require.NoError(t, err)
	assert.Same(t, first.Repo, repo)
	assert.Equal(t, 2, c.Len())
}

// field-level cycle, both sides plain pointers
type Alpha struct {
	B *Beta `inject:""`
}

type Beta struct {
	A *Alpha `inject:""`
}

func TestResolve_FieldCycle(t *testing.T) {
	c := New(nil)

	a, err := Resolve[*Alpha](c)
	require.NoError(t, err)
	b, err := Resolve[*Beta](c)
	require.NoError(t, err)

	require.NotNil(t, a.B)
	require.NotNil(t, b.A)
	assert.Same(t, a, a.B.A)
	assert.Same(t, b, b.A.B)
}

// Gamma builds through a constructor that needs Delta, and Delta points
// back at Gamma through a field.
type Gamma struct {
	D *Delta
}

type Delta struct {
	G *Gamma `inject:""`
}

func NewGamma(d *Delta) *Gamma {
	return &Gamma{D: d}
}

func TestResolve_FieldCycleThroughConstructor(t *testing.T) {
	c := New(nil)
	declare(t, c, descriptor.Declaration{
		Type:         typeOf[*Gamma](),
		Constructors: []descriptor.ConstructorDecl{{Func: NewGamma}},
	})

	g, err := Resolve[*Gamma](c)
	require.NoError(t, err)
	require.NotNil(t, g.D)
	assert.Same(t, g, g.D.G)

	d, err := Resolve[*Delta](c)
	require.NoError(t, err)
	assert.Same(t, g.D, d)
}

// Deferred handles on both sides
type Left struct {
	Right Deferred[*Right] `inject:""`
}

type Right struct {
	Left Deferred[*Left] `inject:""`
}

func TestResolve_DeferredCycle(t *testing.T) {
	c := New(nil)

	l, err := Resolve[*Left](c)
	require.NoError(t, err)
	require.True(t, l.Right.Bound())

	r := l.Right.Get()
	require.NotNil(t, r)
	assert.Same(t, l, r.Left.Get())
	assert.Same(t, r, r.Left.Get().Right.Get())

	again, err := Resolve[*Right](c)
	require.NoError(t, err)
	assert.Same(t, r, again)
}

type Clock interface{ Now() int64 }

type systemClock struct{}

func (*systemClock) Now() int64 { return 7 }

type Scheduler struct {
	Clock Clock               `inject:""`
	Later Deferred[Clock]     `inject:""`
	Self  Deferred[*Scheduler] `inject:""`
}

func TestResolve_DeferredInterface(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.RegisterImplementation(typeOf[Clock](), typeOf[*systemClock]()))

	s, err := Resolve[*Scheduler](c)
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.Later.Get().Now())
	assert.Same(t, s.Clock.(*systemClock), s.Later.Get().(*systemClock))
	assert.Same(t, s, s.Self.Get())
}

func TestDeferred_Unbound(t *testing.T) {
	var d Deferred[*Service]
	assert.False(t, d.Bound())

	_, err := d.Resolve()
	assert.True(t, errors.IsCode(err, errors.UnresolvedDependencyErrorCode))
	assert.Panics(t, func() { d.Get() })
}

// Ledger needs a Journal to be built; the Journal reaches back lazily
type Ledger struct{ journal *Journal }

type Journal struct {
	Ledger Deferred[*Ledger] `inject:""`
	early  error
}

func (j *Journal) Init() error {
	_, j.early = j.Ledger.Resolve()
	return nil
}

func TestDeferred_RetriesAfterTargetIsBuilt(t *testing.T) {
	c := New(nil)
	declare(t, c, descriptor.Declaration{
		Type:         typeOf[*Ledger](),
		Constructors: []descriptor.ConstructorDecl{{Func: func(j *Journal) *Ledger { return &Ledger{journal: j} }}},
	})

	ledger, err := Resolve[*Ledger](c)
	require.NoError(t, err)

	// used from Init while the ledger was still being constructed
	require.Error(t, ledger.journal.early)
	assert.True(t, errors.IsCode(ledger.journal.early, errors.UnresolvedDependencyErrorCode))
	assert.False(t, errors.IsCode(ledger.journal.early, errors.CircularDependencyErrorCode))

	later, err := ledger.journal.Ledger.Resolve()
	require.NoError(t, err)
	assert.Same(t, ledger, later)
	assert.Same(t, ledger, ledger.journal.Ledger.Get())
}

type Beacon struct{ lit bool }

// Launcher resolves from a goroutine it starts during Init
type Launcher struct {
	Beacon Deferred[*Beacon] `inject:""`
	seen   chan *Beacon
}

func (l *Launcher) Init() error {
	l.seen = make(chan *Beacon, 1)
	go func() { l.seen <- l.Beacon.Get() }()
	return nil
}

func TestDeferred_OtherGoroutineWaitsForBuild(t *testing.T) {
	c := New(nil)

	launcher, err := Resolve[*Launcher](c)
	require.NoError(t, err)

	var beacon *Beacon
	select {
	case beacon = <-launcher.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("deferred resolution from a second goroutine never completed")
	}

	direct, err := Resolve[*Beacon](c)
	require.NoError(t, err)
	assert.Same(t, direct, beacon)
	assert.False(t, c.ownsBuild())
}

// constructor-level cycle
type Ping struct{ pong *Pong }
type Pong struct{ ping *Ping }

func TestResolve_ConstructorCycle(t *testing.T) {
	c := New(nil)
	declare(t, c, descriptor.Declaration{
		Type:         typeOf[*Ping](),
		Constructors: []descriptor.ConstructorDecl{{Func: func(p *Pong) *Ping { return &Ping{pong: p} }}},
	})
	declare(t, c, descriptor.Declaration{
		Type:         typeOf[*Pong](),
		Constructors: []descriptor.ConstructorDecl{{Func: func(p *Ping) *Pong { return &Pong{ping: p} }}},
	})

	_, err := Resolve[*Ping](c)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CircularDependencyErrorCode))

	var cycle *errors.CircularDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"*container.Ping", "*container.Pong", "*container.Ping"}, cycle.Chain)

	// nothing half-built is left behind
	_, err = Resolve[*Pong](c)
	assert.True(t, errors.IsCode(err, errors.CircularDependencyErrorCode))
	assert.Equal(t, 0, c.Len())
}

type Mailer interface{ Send(string) error }

type smtpMailer struct{}

func (*smtpMailer) Send(string) error { return nil }

type queueMailer struct{}

func (*queueMailer) Send(string) error { return nil }

type Notifier struct {
	Mailer Mailer `inject:""`
}

func TestResolve_Interfaces(t *testing.T) {
	t.Run("unresolved", func(t *testing.T) {
		c := New(nil)
		_, err := Resolve[*Notifier](c)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.UnresolvedDependencyErrorCode))
	})

	t.Run("default", func(t *testing.T) {
		c := New(nil)
		declare(t, c, descriptor.Declaration{Type: typeOf[Mailer](), Default: typeOf[*smtpMailer]()})

		n, err := Resolve[*Notifier](c)
		require.NoError(t, err)
		assert.IsType(t, &smtpMailer{}, n.Mailer)
	})

	t.Run("binding wins over default", func(t *testing.T) {
		c := New(nil)
		declare(t, c, descriptor.Declaration{Type: typeOf[Mailer](), Default: typeOf[*smtpMailer]()})
		require.NoError(t, c.RegisterImplementation(typeOf[Mailer](), typeOf[*queueMailer]()))

		n, err := Resolve[*Notifier](c)
		require.NoError(t, err)
		assert.IsType(t, &queueMailer{}, n.Mailer)

		concrete, err := Resolve[*queueMailer](c)
		require.NoError(t, err)
		assert.Same(t, concrete, n.Mailer)
	})

	t.Run("duplicate binding", func(t *testing.T) {
		c := New(nil)
		require.NoError(t, c.RegisterImplementation(typeOf[Mailer](), typeOf[*smtpMailer]()))
		err := c.RegisterImplementation(typeOf[Mailer](), typeOf[*queueMailer]())
		assert.True(t, errors.IsCode(err, errors.DuplicateBindingErrorCode))

		bound, ok := c.Binding(typeOf[Mailer]())
		require.True(t, ok)
		assert.Equal(t, typeOf[*smtpMailer](), bound)
	})

	t.Run("binding must implement", func(t *testing.T) {
		c := New(nil)
		err := c.RegisterImplementation(typeOf[Mailer](), typeOf[*Repository]())
		assert.True(t, errors.IsCode(err, errors.DescriptorErrorCode))
	})
}

func TestResolve_AmbiguousConstructor(t *testing.T) {
	c := New(nil)
	declare(t, c, descriptor.Declaration{
		Type: typeOf[*Repository](),
		Constructors: []descriptor.ConstructorDecl{
			{Func: func() *Repository { return &Repository{} }},
			{Func: func() (*Repository, error) { return &Repository{}, nil }},
		},
	})

	_, err := Resolve[*Repository](c)
	assert.True(t, errors.IsCode(err, errors.AmbiguousConstructorErrorCode))
}

type Pager struct {
	Size    int
	Enabled bool `named:"paging.enabled"`
}

func TestResolve_NamedValues(t *testing.T) {
	c := New(nil)
	declare(t, c, descriptor.Declaration{
		Type: typeOf[*Pager](),
		Constructors: []descriptor.ConstructorDecl{{
			Func:  func(size int) *Pager { return &Pager{Size: size} },
			Named: map[int]string{0: "paging.size"},
		}},
	})
	c.RegisterNamed("paging.size", "25")
	c.RegisterNamed("paging.enabled", "true")
	assert.False(t, c.RegisterNamed("paging.size", "50"))

	p, err := Resolve[*Pager](c)
	require.NoError(t, err)
	assert.Equal(t, 25, p.Size)
	assert.True(t, p.Enabled)
}

func TestResolve_NamedValueErrors(t *testing.T) {
	_, err := New(nil).ResolveNamed("missing")
	assert.True(t, errors.IsCode(err, errors.UnresolvedNamedValueErrorCode))

	c := New(nil)
	_, err = Resolve[*Repository](c)
	assert.True(t, errors.IsCode(err, errors.UnresolvedNamedValueErrorCode))

	c = New(nil)
	c.RegisterNamed("paging.enabled", "sometimes")
	_, err = Resolve[*Pager](c)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ArgumentCoercionErrorCode))
}

type Warmup struct {
	Repo  *Repository `inject:""`
	ready bool
}

func (w *Warmup) Init() error {
	if w.Repo == nil {
		return stderrors.New("repository not injected before init")
	}
	w.ready = true
	return nil
}

type Failing struct{}

func (f *Failing) Init() error { return stderrors.New("boom") }

func TestResolve_InitHook(t *testing.T) {
	c := New(nil)
	c.RegisterNamed("db.url", "memory://")

	w, err := Resolve[*Warmup](c)
	require.NoError(t, err)
	assert.True(t, w.ready)

	_, err = Resolve[*Failing](c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRegisterInstance_FirstWins(t *testing.T) {
	c := New(nil)
	first := &Repository{URL: "first"}
	assert.True(t, c.RegisterInstance(typeOf[*Repository](), first))
	assert.False(t, c.RegisterInstance(typeOf[*Repository](), &Repository{URL: "second"}))
	assert.False(t, c.RegisterInstance(typeOf[*Repository](), nil))

	s, err := Resolve[*Service](c)
	require.NoError(t, err)
	assert.Same(t, first, s.Repo)
}

type PostMapper interface{ Count() int }

type fakeMapper struct{}

func (fakeMapper) Count() int { return 3 }

func TestResolve_Mapper(t *testing.T) {
	mapperDecl := descriptor.Declaration{Type: typeOf[PostMapper](), Annotations: []string{"//loom::mapper"}}

	c := New(nil)
	declare(t, c, mapperDecl)
	_, err := Resolve[PostMapper](c)
	assert.True(t, errors.IsCode(err, errors.UnresolvedDependencyErrorCode))

	c = New(nil)
	declare(t, c, mapperDecl)
	var asked reflect.Type
	c.SetMapperFactory(func(iface reflect.Type) (any, error) {
		asked = iface
		return fakeMapper{}, nil
	})
	m, err := Resolve[PostMapper](c)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Count())
	assert.Equal(t, typeOf[PostMapper](), asked)

	c = New(nil)
	declare(t, c, mapperDecl)
	c.RegisterInstance(typeOf[PostMapper](), fakeMapper{})
	m, err = Resolve[PostMapper](c)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Count())
}

func TestOnResolved(t *testing.T) {
	c := New(nil)
	c.RegisterNamed("db.url", "memory://")

	var seen []string
	c.OnResolved(func(component *descriptor.Component, instance any) error {
		seen = append(seen, component.Name)
		return nil
	})

	_, err := Resolve[*Service](c)
	require.NoError(t, err)
	assert.Equal(t, []string{"*container.Repository", "*container.Service"}, seen)

	_, err = Resolve[*Service](c)
	require.NoError(t, err)
	assert.Len(t, seen, 2)
}

func TestResolve_NonStructType(t *testing.T) {
	_, err := New(nil).Resolve(typeOf[int]())
	assert.True(t, errors.IsCode(err, errors.UnresolvedDependencyErrorCode))
}
