package core

// Blob 存储一个普通文件的完整内容
type Blob struct {
	sealed
}

func NewBlob(data []byte) (*Blob, error) {
	s, err := seal(TypeBlob, data)
	if err != nil {
		return nil, err
	}
	return &Blob{sealed: s}, nil
}

func (b *Blob) Size() int64 { return int64(len(b.payload)) }
