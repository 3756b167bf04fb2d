package utils

// ChunkBytes 将字节数组按固定大小分块（最后一块可能较短）
//
// chunkSize 非正数时返回整个输入作为单个分块；空输入返回 nil。
func ChunkBytes(data []byte, chunkSize int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	if chunkSize <= 0 || chunkSize >= len(data) {
		return [][]byte{data}
	}

	chunks := make([][]byte, 0, (len(data)+chunkSize-1)/chunkSize)
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	return chunks
}
