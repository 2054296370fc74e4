package preview

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/docsession/gateway"
	"github.com/jmcleod/docsession/internal/fakeservice"
	"github.com/jmcleod/docsession/session"
	"github.com/jmcleod/docsession/storage/memory"
)

type stubFetcher struct {
	downloads []int64
	previews  []int64
	err       error
}

func (s *stubFetcher) Download(_ context.Context, id int64) (gateway.Content, error) {
	s.downloads = append(s.downloads, id)
	if s.err != nil {
		return gateway.Content{}, s.err
	}
	return gateway.Content{Data: []byte("text " + strconv.FormatInt(id, 10)), ContentType: "text/plain"}, nil
}

func (s *stubFetcher) Preview(_ context.Context, id int64) (gateway.Content, error) {
	s.previews = append(s.previews, id)
	if s.err != nil {
		return gateway.Content{}, s.err
	}
	return gateway.Content{Data: []byte{byte(id)}, ContentType: "application/pdf"}, nil
}

func TestKindFor(t *testing.T) {
	tests := []struct {
		name    string
		want    Kind
		wantErr error
	}{
		{name: "notes.txt", want: KindInlineText},
		{name: "README.MD", want: KindInlineText},
		{name: "report.pdf", want: KindRevocableURI},
		{name: "photo.jpeg", want: KindRevocableURI},
		{name: "archive.tar.gz", want: KindRevocableURI},
		{name: "Makefile", wantErr: ErrNoExtension},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KindFor(tt.name)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestViewerRoutesByExtension(t *testing.T) {
	c := newTestCache()
	f := &stubFetcher{}
	v := NewViewer(c, f)

	h, err := v.Show(context.Background(), File{ID: 1, Filename: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, KindInlineText, h.Kind)
	assert.Equal(t, "text 1", h.Text)

	h, err = v.Show(context.Background(), File{ID: 2, Filename: "b.pdf"})
	require.NoError(t, err)
	assert.Equal(t, KindRevocableURI, h.Kind)

	assert.Equal(t, []int64{1}, f.downloads)
	assert.Equal(t, []int64{2}, f.previews)
}

func TestViewerReleasesPreviousHandle(t *testing.T) {
	c := newTestCache()
	v := NewViewer(c, &stubFetcher{})

	first, err := v.Show(context.Background(), File{ID: 1, Filename: "a.pdf"})
	require.NoError(t, err)
	second, err := v.Show(context.Background(), File{ID: 2, Filename: "b.png"})
	require.NoError(t, err)

	_, _, ok := c.Resolve(first.URI)
	assert.False(t, ok, "previous handle released on replace")
	_, _, ok = c.Resolve(second.URI)
	assert.True(t, ok)
	assert.Equal(t, 1, c.Live())

	cur, file, open := v.Current()
	require.True(t, open)
	assert.Equal(t, second, cur)
	assert.Equal(t, int64(2), file.ID)

	v.Close()
	v.Close()
	assert.Zero(t, c.Live())
	_, _, open = v.Current()
	assert.False(t, open)
}

func TestViewerNoExtensionKeepsCurrent(t *testing.T) {
	c := newTestCache()
	f := &stubFetcher{}
	v := NewViewer(c, f)

	h, err := v.Show(context.Background(), File{ID: 1, Filename: "a.pdf"})
	require.NoError(t, err)

	_, err = v.Show(context.Background(), File{ID: 2, Filename: "LICENSE"})
	assert.ErrorIs(t, err, ErrNoExtension)
	cur, _, open := v.Current()
	assert.True(t, open)
	assert.Equal(t, h, cur)
	assert.Equal(t, []int64{1}, f.previews, "nothing fetched")
}

func TestViewerFetchErrorLeavesEmpty(t *testing.T) {
	c := newTestCache()
	f := &stubFetcher{}
	v := NewViewer(c, f)

	_, err := v.Show(context.Background(), File{ID: 1, Filename: "a.pdf"})
	require.NoError(t, err)

	f.err = errors.New("connection refused")
	_, err = v.Show(context.Background(), File{ID: 2, Filename: "b.pdf"})
	assert.Error(t, err)
	_, _, open := v.Current()
	assert.False(t, open)
	assert.Zero(t, c.Live(), "previous handle released even though the fetch failed")
}

func TestViewerOpenedEqualsReleased(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	c := newTestCache()
	f := &stubFetcher{}
	v := NewViewer(c, f)
	names := []string{"a.txt", "b.pdf", "c.png", "d.md", "noext", "e.jpg"}

	for i := 0; i < 300; i++ {
		switch rng.IntN(4) {
		case 0:
			v.Close()
		case 1:
			f.err = errors.New("flaky")
			_, _ = v.Show(context.Background(), File{ID: int64(i), Filename: names[rng.IntN(len(names))]})
			f.err = nil
		default:
			_, _ = v.Show(context.Background(), File{ID: int64(i), Filename: names[rng.IntN(len(names))]})
		}
		require.LessOrEqual(t, c.Live(), 1, "viewer never holds more than one handle")
	}
	v.Close()

	opened, released := c.Counts()
	assert.Positive(t, opened)
	assert.Equal(t, opened, released)
	assert.Zero(t, c.Live())
}

func TestViewerAgainstDocumentService(t *testing.T) {
	svc := fakeservice.New()
	srv := svc.Start()
	defer srv.Close()

	store := session.NewStore(session.NewRepositoryPersister(memory.NewRepository(), ""), session.WithLogger(quietLogger()))
	gw, err := gateway.New(srv.URL, store, gateway.WithLogger(quietLogger()))
	require.NoError(t, err)
	docs := gateway.NewDocuments(gw)

	u := svc.AddUser("alice@example.com", "pw", "Alice", session.RoleUser)
	require.NoError(t, store.Commit(session.New(u, svc.Issue(u, time.Hour))))
	textID := svc.AddFile(u.ID, "notes.md", []byte("# notes"))
	pdfID := svc.AddFile(u.ID, "scan.pdf", []byte("%PDF-1.4"))

	c := newTestCache()
	v := NewViewer(c, docs)

	h, err := v.Show(context.Background(), File{ID: textID, Filename: "notes.md"})
	require.NoError(t, err)
	assert.Equal(t, "# notes", h.Text)

	h, err = v.Show(context.Background(), File{ID: pdfID, Filename: "scan.pdf"})
	require.NoError(t, err)
	data, ct, ok := c.Resolve(h.URI)
	require.True(t, ok)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, "application/pdf", ct)

	_, err = v.Show(context.Background(), File{ID: 999, Filename: "missing.pdf"})
	assert.ErrorIs(t, err, gateway.ErrNotFound)
	assert.Zero(t, c.Live())
}
