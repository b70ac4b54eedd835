package fatdisk

import (
	"errors"
	"io"
	"testing"

	"github.com/golang/mock/gomock"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testImage = "/disk.img"

// clusters512 is a FAT12 disk with 512 byte clusters.
func clusters512() Params {
	return CustomParams(512, 1, 256)
}

func newTestSession(t *testing.T, params Params) (*Session, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	log, _ := logtest.NewNullLogger()
	s, err := CreateSession(fs, testImage, params, log)
	require.NoError(t, err)
	return s, fs
}

func testPayload(size int) []byte {
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	return payload
}

func readImage(t *testing.T, fs afero.Fs) []byte {
	t.Helper()

	data, err := afero.ReadFile(fs, testImage)
	require.NoError(t, err)
	return data
}

func childNames(t *testing.T, s *Session, p string) []string {
	t.Helper()

	dir, err := s.ListDir(p)
	require.NoError(t, err)
	return displayNames(dir.Children())
}

func TestCreateSession(t *testing.T) {
	s, fs := newTestSession(t, SmallParams())

	assert.Equal(t, FAT12, s.Boot().Variant())
	assert.Equal(t, 127, s.table.FreeCount())
	assert.Equal(t, "/", s.WorkingDir())

	root, err := s.ListDir("/")
	require.NoError(t, err)
	assert.Equal(t, []string{".", ".."}, displayNames(root.Entries()))
	assert.True(t, root.IsRoot())
	assert.Equal(t, uint32(2), root.SelfCluster())

	info, err := fs.Stat(testImage)
	require.NoError(t, err)
	assert.Equal(t, s.Boot().ImageSize(), info.Size())

	_, err = CreateSession(fs, testImage, SmallParams(), s.log)
	assert.True(t, errors.Is(err, ErrAlreadyExists), "got %v", err)
}

func TestCreateSession_invalidParams(t *testing.T) {
	fs := afero.NewMemMapFs()
	log, _ := logtest.NewNullLogger()

	_, err := CreateSession(fs, testImage, CustomParams(512, 3, 256), log)
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)

	exists, err := afero.Exists(fs, testImage)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSession_SpaceInfo(t *testing.T) {
	s, _ := newTestSession(t, SmallParams())

	assert.Equal(t, DiskSpaceInfo{
		Variant: FAT12,
		Total:   256 * 512,
		Free:    127 * 1024,
		Used:    256*512 - 127*1024,
	}, s.SpaceInfo())
}

func TestSession_MkdirAndRemove(t *testing.T) {
	s, _ := newTestSession(t, SmallParams())

	require.NoError(t, s.Mkdir("/a"))
	require.NoError(t, s.Mkdir("/a/b"))
	assert.Equal(t, 125, s.table.FreeCount())
	assert.Equal(t, []string{"a"}, childNames(t, s, "/"))
	assert.Equal(t, []string{"b"}, childNames(t, s, "/a"))

	b, err := s.ListDir("/a/b")
	require.NoError(t, err)
	a, err := s.ListDir("/a")
	require.NoError(t, err)
	assert.Equal(t, a.SelfCluster(), b.ParentCluster())
	assert.Equal(t, uint32(2), a.ParentCluster())

	require.NoError(t, s.Remove("/a"))
	assert.Equal(t, 127, s.table.FreeCount())
	assert.Empty(t, childNames(t, s, "/"))

	_, err = s.ListDir("/a")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestSession_Mkdir(t *testing.T) {
	s, _ := newTestSession(t, SmallParams())
	require.NoError(t, s.Mkdir("/a"))
	require.NoError(t, s.Mkdir("/longnames"))
	free := s.table.FreeCount()

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "existing directory", path: "/a"},
		{name: "root", path: "/"},
		{name: "same name after truncation", path: "/longnamesake"},
		{name: "missing parent", path: "/x/y", wantErr: ErrNotFound},
		{name: "no base name", path: "/.hidden", wantErr: ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Mkdir(tt.path)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
			assert.Equal(t, free, s.table.FreeCount())
		})
	}

	assert.Equal(t, []string{"a", "longname"}, childNames(t, s, "/"))
}

func TestSession_Mkdir_overFile(t *testing.T) {
	s, fs := newTestSession(t, SmallParams())
	require.NoError(t, afero.WriteFile(fs, "/f.txt", []byte("hi"), 0644))
	require.NoError(t, s.CopyIn("/f.txt", "/f.txt"))

	before := readImage(t, fs)
	free := s.table.FreeCount()

	err := s.Mkdir("/f.txt")
	assert.True(t, errors.Is(err, ErrWrongType), "got %v", err)

	assert.Equal(t, before, readImage(t, fs))
	assert.Equal(t, free, s.table.FreeCount())
}

func TestSession_Remove_missing(t *testing.T) {
	s, fs := newTestSession(t, SmallParams())
	require.NoError(t, afero.WriteFile(fs, "/f.txt", []byte("hi"), 0644))
	require.NoError(t, s.CopyIn("/f.txt", "/f.txt"))

	before := readImage(t, fs)
	free := s.table.FreeCount()

	for _, p := range []string{"/missing", "/missing/deeper", "/f.txt/x"} {
		assert.NoError(t, s.Remove(p), p)
	}

	assert.Equal(t, before, readImage(t, fs))
	assert.Equal(t, free, s.table.FreeCount())
}

func TestSession_Remove_root(t *testing.T) {
	s, _ := newTestSession(t, SmallParams())

	for _, p := range []string{"/", "/.", "/a/.."} {
		err := s.Remove(p)
		assert.True(t, errors.Is(err, ErrInvalidName), "%v: got %v", p, err)
	}
}

func TestSession_CopyInAndCat(t *testing.T) {
	s, fs := newTestSession(t, clusters512())
	payload := testPayload(5000)
	require.NoError(t, afero.WriteFile(fs, "/payload.bin", payload, 0644))
	free := s.table.FreeCount()

	require.NoError(t, s.CopyIn("/payload.bin", "/data.bin"))

	root, err := s.ListDir("/")
	require.NoError(t, err)
	entry, ok := root.Lookup("data.bin")
	require.True(t, ok)
	assert.Equal(t, uint32(5000), entry.Size())
	assert.False(t, entry.IsDir())

	chain, err := s.table.Chain(entry.Cluster())
	require.NoError(t, err)
	assert.Len(t, chain, 10)
	assert.Equal(t, free-10, s.table.FreeCount())

	text, err := s.Cat("/data.bin")
	require.NoError(t, err)
	assert.Equal(t, string(payload), text)

	f, err := s.Open("/data.bin")
	require.NoError(t, err)
	read, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, payload, read)

	require.NoError(t, s.CopyOut("/data.bin", "/out.bin"))
	out, err := afero.ReadFile(fs, "/out.bin")
	require.NoError(t, err)
	assert.Equal(t, payload, out)

	require.NoError(t, s.Remove("/data.bin"))
	assert.Equal(t, free, s.table.FreeCount())
}

func TestSession_CopyIn_errors(t *testing.T) {
	s, fs := newTestSession(t, clusters512())
	require.NoError(t, afero.WriteFile(fs, "/f.txt", []byte("hi"), 0644))
	require.NoError(t, fs.Mkdir("/hostdir", 0755))
	require.NoError(t, s.CopyIn("/f.txt", "/f.txt"))

	tests := []struct {
		name    string
		src     string
		dst     string
		wantErr error
	}{
		{name: "missing source", src: "/nothing", dst: "/x", wantErr: ErrNotFound},
		{name: "directory source", src: "/hostdir", dst: "/x", wantErr: ErrWrongType},
		{name: "existing destination", src: "/f.txt", dst: "/f.txt", wantErr: ErrAlreadyExists},
		{name: "missing parent", src: "/f.txt", dst: "/nope/f.txt", wantErr: ErrNotFound},
		{name: "root", src: "/f.txt", dst: "/", wantErr: ErrAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			free := s.table.FreeCount()
			err := s.CopyIn(tt.src, tt.dst)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, free, s.table.FreeCount())
		})
	}
}

func TestSession_CopyOut_errors(t *testing.T) {
	s, fs := newTestSession(t, clusters512())
	require.NoError(t, afero.WriteFile(fs, "/f.txt", []byte("hi"), 0644))
	require.NoError(t, s.CopyIn("/f.txt", "/f.txt"))
	require.NoError(t, s.Mkdir("/dir"))

	tests := []struct {
		name    string
		src     string
		dst     string
		wantErr error
	}{
		{name: "existing destination", src: "/f.txt", dst: "/f.txt", wantErr: ErrAlreadyExists},
		{name: "missing source", src: "/nothing", dst: "/out", wantErr: ErrNotFound},
		{name: "directory source", src: "/dir", dst: "/out", wantErr: ErrWrongType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CopyOut(tt.src, tt.dst)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	exists, err := afero.Exists(fs, "/out")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSession_emptyFile(t *testing.T) {
	s, fs := newTestSession(t, clusters512())
	require.NoError(t, afero.WriteFile(fs, "/empty", nil, 0644))
	free := s.table.FreeCount()

	require.NoError(t, s.CopyIn("/empty", "/empty"))
	assert.Equal(t, free, s.table.FreeCount())

	root, err := s.ListDir("/")
	require.NoError(t, err)
	entry, ok := root.Lookup("empty")
	require.True(t, ok)
	assert.Equal(t, uint32(0), entry.Cluster())

	text, err := s.Cat("/empty")
	require.NoError(t, err)
	assert.Equal(t, "", text)

	require.NoError(t, s.Remove("/empty"))
	assert.Empty(t, childNames(t, s, "/"))
}

func TestSession_Cat_errors(t *testing.T) {
	s, _ := newTestSession(t, clusters512())
	require.NoError(t, s.Mkdir("/dir"))

	_, err := s.Cat("/dir")
	assert.True(t, errors.Is(err, ErrWrongType), "got %v", err)

	_, err = s.Cat("/missing")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	_, err = s.Cat("/dir/missing/deeper")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestSession_Cat_corruptChain(t *testing.T) {
	s, fs := newTestSession(t, clusters512())
	require.NoError(t, afero.WriteFile(fs, "/payload.bin", testPayload(5000), 0644))
	require.NoError(t, s.CopyIn("/payload.bin", "/data.bin"))

	root, err := s.ListDir("/")
	require.NoError(t, err)
	entry, ok := root.Lookup("data.bin")
	require.True(t, ok)

	_, err = s.table.Resize(entry.Cluster(), 2)
	require.NoError(t, err)

	_, err = s.Cat("/data.bin")
	assert.True(t, errors.Is(err, ErrCorruptChain), "got %v", err)
}

func TestSession_truncatedImage(t *testing.T) {
	s, host := newTestSession(t, clusters512())
	require.NoError(t, afero.WriteFile(host, "/payload.bin", testPayload(5000), 0644))
	require.NoError(t, s.CopyIn("/payload.bin", "/data.bin"))

	root, err := s.ListDir("/")
	require.NoError(t, err)
	entry, ok := root.Lookup("data.bin")
	require.True(t, ok)
	chain, err := s.table.Chain(entry.Cluster())
	require.NoError(t, err)

	image := readImage(t, host)
	boot := s.Boot()
	require.NoError(t, s.Close())

	// Cut the image inside of the last cluster of the file.
	cut := boot.ClusterOffset(chain[len(chain)-1]) + 100
	require.NoError(t, afero.WriteFile(host, testImage, image[:cut], 0644))

	reopened, err := OpenSession(host, testImage, s.log)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Cat("/data.bin")
	assert.True(t, errors.Is(err, ErrCorruptChain), "got %v", err)
	assert.Contains(t, err.Error(), "/data.bin")

	f, err := reopened.FS().Open("data.bin")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	assert.Error(t, err)
	assert.Less(t, len(data), 5000)

	// Without the root directory the image cannot be opened at all.
	require.NoError(t, afero.WriteFile(host, "/rootless.img", image[:boot.ClusterOffset(boot.RootCluster())+10], 0644))
	_, err = OpenSession(host, "/rootless.img", s.log)
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
	assert.True(t, errors.Is(err, ErrCorruptChain), "got %v", err)
}

func TestSession_truncatedNames(t *testing.T) {
	s, host := newTestSession(t, clusters512())
	require.NoError(t, afero.WriteFile(host, "/v.txt", []byte("short names only"), 0644))

	require.NoError(t, s.Mkdir("/longnamesake"))
	require.NoError(t, s.Chdir("/longnamesake"))
	require.NoError(t, s.Chdir("/longname"))
	require.NoError(t, s.Chdir("/"))

	require.NoError(t, s.CopyIn("/v.txt", "/verylongname.text"))
	assert.Equal(t, []string{"longname", "verylong.tex"}, childNames(t, s, "/"))

	text, err := s.Cat("/verylongname.text")
	require.NoError(t, err)
	assert.Equal(t, "short names only", text)

	text, err = s.Cat("/verylong.tex")
	require.NoError(t, err)
	assert.Equal(t, "short names only", text)

	err = s.CopyIn("/v.txt", "/verylongnames.texts")
	assert.True(t, errors.Is(err, ErrAlreadyExists), "got %v", err)

	require.NoError(t, s.Remove("/verylongname.text"))
	require.NoError(t, s.Remove("/longnamesake"))
	assert.Empty(t, childNames(t, s, "/"))
}

func TestSession_directoryGrowth(t *testing.T) {
	s, _ := newTestSession(t, clusters512())
	root := s.Boot().RootCluster()

	names := make([]string, 20)
	for i := range names {
		names[i] = "d" + string(rune('a'+i))
		require.NoError(t, s.Mkdir("/"+names[i]))
	}

	chain, err := s.table.Chain(root)
	require.NoError(t, err)
	assert.Len(t, chain, 2)
	assert.Equal(t, 255-20-1, s.table.FreeCount())
	assert.Equal(t, names, childNames(t, s, "/"))

	for _, name := range names[:10] {
		require.NoError(t, s.Remove("/"+name))
	}

	chain, err = s.table.Chain(root)
	require.NoError(t, err)
	assert.Len(t, chain, 1)
	assert.Equal(t, 255-10, s.table.FreeCount())
	assert.Equal(t, names[10:], childNames(t, s, "/"))
}

func TestSession_Chdir(t *testing.T) {
	s, fs := newTestSession(t, clusters512())
	require.NoError(t, afero.WriteFile(fs, "/f.txt", []byte("hi"), 0644))
	require.NoError(t, s.CopyIn("/f.txt", "/f.txt"))
	require.NoError(t, s.Mkdir("/a"))

	require.NoError(t, s.Chdir("a"))
	assert.Equal(t, "/a", s.WorkingDir())

	require.NoError(t, s.Mkdir("b"))
	assert.Equal(t, []string{"b"}, childNames(t, s, "/a"))
	assert.Equal(t, []string{"b"}, childNames(t, s, "."))

	err := s.Chdir("/f.txt")
	assert.True(t, errors.Is(err, ErrWrongType), "got %v", err)
	err = s.Chdir("/missing")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	assert.Equal(t, "/a", s.WorkingDir())

	require.NoError(t, s.Chdir(".."))
	assert.Equal(t, "/", s.WorkingDir())
	require.NoError(t, s.Chdir(".."))
	assert.Equal(t, "/", s.WorkingDir())
}

func TestSession_spaceExhausted(t *testing.T) {
	s, fs := newTestSession(t, CustomParams(512, 1, 8))
	require.Equal(t, 7, s.table.FreeCount())
	require.NoError(t, afero.WriteFile(fs, "/big", testPayload(8*512), 0644))
	require.NoError(t, afero.WriteFile(fs, "/fits", testPayload(7*512), 0644))

	before := readImage(t, fs)
	err := s.CopyIn("/big", "/big")
	assert.True(t, errors.Is(err, ErrSpaceExhausted), "got %v", err)
	assert.Equal(t, 7, s.table.FreeCount())
	assert.Equal(t, before, readImage(t, fs))

	require.NoError(t, s.CopyIn("/fits", "/fits"))
	assert.Equal(t, 0, s.table.FreeCount())

	err = s.Mkdir("/dir")
	assert.True(t, errors.Is(err, ErrSpaceExhausted), "got %v", err)
	assert.Equal(t, 0, s.table.FreeCount())
	assert.Equal(t, []string{"fits"}, childNames(t, s, "/"))
}

func TestSession_reopen(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		variant Variant
	}{
		{name: "FAT12", params: SmallParams(), variant: FAT12},
		{name: "FAT16", params: MediumParams(), variant: FAT16},
		{name: "FAT32", params: CustomParams(512, 1, 70000), variant: FAT32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fs := newTestSession(t, tt.params)
			require.Equal(t, tt.variant, s.Boot().Variant())

			payload := testPayload(3000)
			require.NoError(t, afero.WriteFile(fs, "/hello.txt", payload, 0644))
			require.NoError(t, s.Mkdir("/docs"))
			require.NoError(t, s.CopyIn("/hello.txt", "/docs/hello.txt"))
			free := s.table.FreeCount()
			require.NoError(t, s.Close())

			reopened, err := OpenSession(fs, testImage, s.log)
			require.NoError(t, err)
			defer reopened.Close()

			assert.Equal(t, tt.variant, reopened.Boot().Variant())
			assert.Equal(t, free, reopened.table.FreeCount())
			assert.Equal(t, s.table.entries, reopened.table.entries)
			assert.Equal(t, []string{"docs"}, childNames(t, reopened, "/"))
			assert.Equal(t, []string{"hello.txt"}, childNames(t, reopened, "/docs"))

			text, err := reopened.Cat("/docs/hello.txt")
			require.NoError(t, err)
			assert.Equal(t, string(payload), text)
		})
	}
}

func TestOpenSession_errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	log, _ := logtest.NewNullLogger()

	boot, err := NewBootRecord(SmallParams())
	require.NoError(t, err)

	require.NoError(t, fs.Mkdir("/dir", 0755))
	require.NoError(t, afero.WriteFile(fs, "/garbage", []byte("not a disk"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/header-only", boot.Bytes(), 0644))

	// A FAT32 header claiming far more sectors than the image holds.
	huge, err := NewBootRecord(CustomParams(512, 1, 0xFFFFFFFF))
	require.NoError(t, err)
	require.Equal(t, FAT32, huge.Variant())
	require.NoError(t, afero.WriteFile(fs, "/huge-header", huge.Bytes(), 0644))

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "missing", path: "/missing", wantErr: ErrNotFound},
		{name: "directory", path: "/dir", wantErr: ErrWrongType},
		{name: "too short", path: "/garbage", wantErr: ErrValidation},
		{name: "no allocation table", path: "/header-only", wantErr: ErrValidation},
		{name: "table larger than image", path: "/huge-header", wantErr: ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenSession(fs, tt.path, log)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestSession_deviceFailure(t *testing.T) {
	s, _ := newTestSession(t, SmallParams())
	free := s.table.FreeCount()
	errDevice := errors.New("device failure")

	mockCtrl := gomock.NewController(t)
	dev := NewMockblockDevice(mockCtrl)
	dev.EXPECT().ReadAt(gomock.Any(), gomock.Any()).DoAndReturn(s.image.ReadAt).AnyTimes()
	dev.EXPECT().WriteAt(gomock.Any(), gomock.Any()).Return(0, errDevice).AnyTimes()
	s.dev = dev

	err := s.Mkdir("/a")
	assert.True(t, errors.Is(err, errDevice), "got %v", err)
	assert.Equal(t, free, s.table.FreeCount())

	mockCtrl.Finish()
	s.dev = s.image

	assert.Empty(t, childNames(t, s, "/"))
	require.NoError(t, s.Mkdir("/a"))
	assert.Equal(t, []string{"a"}, childNames(t, s, "/"))
}
