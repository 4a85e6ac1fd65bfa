package pipe

import (
	"bytes"
	"testing"

	"github.com/HaoLin-hub/sparrowos/src/fd"
)

func TestPipeWriteThenRead(t *testing.T) {
	g := fd.MkGlobalTable()
	tb := fd.MkTable(g, &[fd.NumFds]int{})
	rfd, wfd, err := Pipe(g, tb)
	if err != 0 {
		t.Fatalf("pipe: %d", err)
	}

	wf, err := tb.Fd_local2global(wfd)
	if err != 0 {
		t.Fatal(err)
	}
	n, err := wf.Fops.Write([]byte("hello"))
	if err != 0 || n != 5 {
		t.Fatalf("write: n=%d err=%d", n, err)
	}

	rf, err := tb.Fd_local2global(rfd)
	if err != 0 {
		t.Fatal(err)
	}
	buf := make([]byte, 5)
	n, err = rf.Fops.Read(buf)
	if err != 0 || n != 5 {
		t.Fatalf("read: n=%d err=%d", n, err)
	}
	if !bytes.Equal(buf, []byte("hello")) {
		t.Fatalf("got %q", buf)
	}
}

func TestPipeReadPartialWhenEmpty(t *testing.T) {
	g := fd.MkGlobalTable()
	tb := fd.MkTable(g, &[fd.NumFds]int{})
	rfd, _, err := Pipe(g, tb)
	if err != 0 {
		t.Fatal(err)
	}
	rf, _ := tb.Fd_local2global(rfd)
	buf := make([]byte, 10)
	n, err := rf.Fops.Read(buf)
	if err != 0 {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0 bytes from an empty pipe, got %d", n)
	}
}

func TestPipeWriteEndCannotRead(t *testing.T) {
	g := fd.MkGlobalTable()
	tb := fd.MkTable(g, &[fd.NumFds]int{})
	_, wfd, _ := Pipe(g, tb)
	wf, _ := tb.Fd_local2global(wfd)
	if _, err := wf.Fops.Read(make([]byte, 1)); err == 0 {
		t.Fatal("expected the write end to refuse Read")
	}
}

func TestPipeCloseDecrementsDupCount(t *testing.T) {
	g := fd.MkGlobalTable()
	tb := fd.MkTable(g, &[fd.NumFds]int{})
	rfd, wfd, _ := Pipe(g, tb)
	rf, _ := tb.Fd_local2global(rfd)
	end := rf.Fops.(*End_t)
	if end.p.dupCnt != 2 {
		t.Fatalf("expected dup count 2 after pipe(), got %d", end.p.dupCnt)
	}
	tb.Close(rfd)
	if end.p.dupCnt != 1 {
		t.Fatalf("expected dup count 1 after closing one end, got %d", end.p.dupCnt)
	}
	tb.Close(wfd)
	if end.p.dupCnt != 0 {
		t.Fatalf("expected dup count 0 after closing both ends, got %d", end.p.dupCnt)
	}
}

func TestCopyfdBumpsDupCount(t *testing.T) {
	g := fd.MkGlobalTable()
	tb := fd.MkTable(g, &[fd.NumFds]int{})
	rfd, _, _ := Pipe(g, tb)
	rf, _ := tb.Fd_local2global(rfd)
	end := rf.Fops.(*End_t)

	if _, err := fd.Copyfd(rf); err != 0 {
		t.Fatal(err)
	}
	if end.p.dupCnt != 3 {
		t.Fatalf("expected dup count 3 after Copyfd, got %d", end.p.dupCnt)
	}
}
