package mnet

import (
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"
)

const (
	// cHEAP_PREPEND 预留在头部的空间，方便上层低成本地前置帧头
	cHEAP_PREPEND = 8
	// iNITIAL_SIZE 初始的可写空间
	iNITIAL_SIZE = 1024
)

// Buffer 可增长的字节缓冲区
// 内部被两个下标划分成三段:
//
//	prependable bytes | readable bytes | writable bytes
//	0   <=   readerIndex   <=   writerIndex   <=   len(buf)
type Buffer struct {
	buf         []byte
	readerIndex int
	writerIndex int
}

func NewBuffer() *Buffer {
	return &Buffer{
		buf:         make([]byte, cHEAP_PREPEND+iNITIAL_SIZE),
		readerIndex: cHEAP_PREPEND,
		writerIndex: cHEAP_PREPEND,
	}
}

func (b *Buffer) ReadableBytes() int {
	return b.writerIndex - b.readerIndex
}

func (b *Buffer) WritableBytes() int {
	return len(b.buf) - b.writerIndex
}

func (b *Buffer) PrependableBytes() int {
	return b.readerIndex
}

// Peek 返回可读区域，不移动下标
func (b *Buffer) Peek() []byte {
	return b.buf[b.readerIndex:b.writerIndex]
}

// Retrieve 消费掉n个可读字节，读完则复位两个下标
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.readerIndex += n
	} else {
		b.RetrieveAll()
	}
}

func (b *Buffer) RetrieveAll() {
	b.readerIndex = cHEAP_PREPEND
	b.writerIndex = cHEAP_PREPEND
}

func (b *Buffer) RetrieveAllAsString() string {
	return b.RetrieveAsString(b.ReadableBytes())
}

func (b *Buffer) RetrieveAsString(n int) string {
	if n > b.ReadableBytes() {
		n = b.ReadableBytes()
	}
	s := string(b.buf[b.readerIndex : b.readerIndex+n])
	b.Retrieve(n)
	return s
}

// EnsureWritable 保证至少有n字节的可写空间
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() < n {
		b.makeSpace(n)
	}
}

// 腾挪或者扩容
// 头部被Retrieve空出的部分加上尾部剩余够用时，把可读数据搬回到
// cHEAP_PREPEND处复用空间；否则直接扩容底层数组
func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.PrependableBytes() < n+cHEAP_PREPEND {
		newBuf := make([]byte, b.writerIndex+n)
		copy(newBuf, b.buf[:b.writerIndex])
		b.buf = newBuf
	} else {
		readable := b.ReadableBytes()
		copy(b.buf[cHEAP_PREPEND:], b.buf[b.readerIndex:b.writerIndex])
		b.readerIndex = cHEAP_PREPEND
		b.writerIndex = b.readerIndex + readable
	}
}

func (b *Buffer) Append(data []byte) {
	b.EnsureWritable(len(data))
	copy(b.buf[b.writerIndex:], data)
	b.HasWritten(len(data))
}

func (b *Buffer) AppendString(s string) {
	b.EnsureWritable(len(s))
	copy(b.buf[b.writerIndex:], s)
	b.HasWritten(len(s))
}

func (b *Buffer) HasWritten(n int) {
	b.writerIndex += n
}

// ReadFd 从fd上分散读
// Buffer的容量有限而一次到达的数据量未知，第二段64KB的暂存区保证
// 单次系统调用也能吸收突发的大块数据；可写空间已经足够大时只提交一段
func (b *Buffer) ReadFd(fd int) (int, error) {
	extra := bytebufferpool.Get()
	if cap(extra.B) < eXTRA_BUF_SIZE {
		extra.B = make([]byte, eXTRA_BUF_SIZE)
	}
	extraBuf := extra.B[:eXTRA_BUF_SIZE]

	writable := b.WritableBytes()
	iovs := make([][]byte, 1, 2)
	iovs[0] = b.buf[b.writerIndex:]
	if writable < eXTRA_BUF_SIZE {
		iovs = append(iovs, extraBuf)
	}
	n, err := unix.Readv(fd, iovs)
	switch {
	case n <= 0:
		// 0代表对端关闭，负数由调用者检查errno
	case n <= writable:
		b.writerIndex += n
	default:
		b.writerIndex = len(b.buf)
		b.Append(extraBuf[:n-writable])
	}
	bytebufferpool.Put(extra)
	return n, err
}

// WriteFd 把可读区域的数据写进fd，写出的部分由调用者Retrieve
func (b *Buffer) WriteFd(fd int) (int, error) {
	return unix.Write(fd, b.Peek())
}
