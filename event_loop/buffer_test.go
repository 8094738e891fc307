package mnet

import (
	"bytes"
	"math/rand"
	"os"
	"testing"
)

func TestBufferAppendRetrieve(t *testing.T) {
	b := NewBuffer()
	if b.ReadableBytes() != 0 {
		t.Fatal("new buffer should have no readable bytes")
	}
	if b.WritableBytes() != iNITIAL_SIZE {
		t.Fatal("new buffer writable size error")
	}
	if b.PrependableBytes() != cHEAP_PREPEND {
		t.Fatal("new buffer prependable size error")
	}

	data := make([]byte, 200)
	rand.Read(data)
	b.Append(data)
	if b.ReadableBytes() != 200 || b.WritableBytes() != iNITIAL_SIZE-200 {
		t.Fatal("append did not move writerIndex")
	}

	got := b.RetrieveAsString(50)
	if got != string(data[:50]) {
		t.Fatal("retrieved bytes mismatch")
	}
	if b.ReadableBytes() != 150 || b.PrependableBytes() != cHEAP_PREPEND+50 {
		t.Fatal("retrieve did not move readerIndex")
	}

	rest := b.RetrieveAllAsString()
	if rest != string(data[50:]) {
		t.Fatal("retrieve all mismatch")
	}
	if b.readerIndex != cHEAP_PREPEND || b.writerIndex != cHEAP_PREPEND {
		t.Fatal("indexes should reset after retrieve all")
	}

	// 重复RetrieveAll不应该改变可观察状态
	b.RetrieveAll()
	if b.ReadableBytes() != 0 || b.readerIndex != cHEAP_PREPEND || b.writerIndex != cHEAP_PREPEND {
		t.Fatal("retrieve all should be idempotent")
	}
}

func TestBufferRoundTrip(t *testing.T) {
	b := NewBuffer()
	data := make([]byte, 4096)
	rand.Read(data)
	b.Append(data)
	if b.RetrieveAllAsString() != string(data) {
		t.Fatal("round trip mismatch")
	}
}

func TestBufferMakeSpace(t *testing.T) {
	// 头部空出的空间足够时应该把数据搬回去而不是扩容
	b := NewBuffer()
	first := bytes.Repeat([]byte{'a'}, 800)
	b.Append(first)
	b.Retrieve(700)
	oldCap := len(b.buf)
	second := bytes.Repeat([]byte{'b'}, 900)
	b.Append(second)
	if len(b.buf) != oldCap {
		t.Fatal("should reuse prependable space instead of growing")
	}
	if b.PrependableBytes() != cHEAP_PREPEND {
		t.Fatal("readable bytes should move down to cheap prepend")
	}
	want := string(first[700:]) + string(second)
	if b.RetrieveAllAsString() != want {
		t.Fatal("data corrupted by move down")
	}

	// 空间不够时扩容
	b2 := NewBuffer()
	b2.Append(bytes.Repeat([]byte{'c'}, 800))
	b2.Retrieve(500)
	b2.Append(bytes.Repeat([]byte{'d'}, 900))
	if b2.ReadableBytes() != 300+900 {
		t.Fatal("grow lost bytes")
	}
	want2 := string(bytes.Repeat([]byte{'c'}, 300)) + string(bytes.Repeat([]byte{'d'}, 900))
	if b2.RetrieveAllAsString() != want2 {
		t.Fatal("data corrupted by grow")
	}
}

func TestBufferReadFd(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	data := make([]byte, 5000)
	rand.Read(data)
	if _, err = w.Write(data); err != nil {
		t.Fatal(err)
	}

	b := NewBuffer()
	// 初始可写空间只有1024，剩下的落进暂存区再补回来
	n, err := b.ReadFd(int(r.Fd()))
	if err != nil {
		t.Fatal(err)
	}
	if n != 5000 || b.ReadableBytes() != 5000 {
		t.Fatalf("readFd got %d bytes", n)
	}
	if b.RetrieveAllAsString() != string(data) {
		t.Fatal("readFd data mismatch")
	}

	// 对端关闭后读到0
	w.Close()
	n, _ = b.ReadFd(int(r.Fd()))
	if n != 0 {
		t.Fatalf("readFd after close got %d", n)
	}
}

func TestBufferWriteFd(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	b := NewBuffer()
	data := make([]byte, 2000)
	rand.Read(data)
	b.Append(data)

	n, err := b.WriteFd(int(w.Fd()))
	if err != nil || n != 2000 {
		t.Fatalf("writeFd n=%d err=%v", n, err)
	}
	b.Retrieve(n)
	if b.ReadableBytes() != 0 {
		t.Fatal("buffer should be drained")
	}

	got := make([]byte, 2000)
	if _, err = r.Read(got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("writeFd data mismatch")
	}
}
