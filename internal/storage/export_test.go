package storage

// SetRenameFile подменяет переименование файлов и возвращает функцию восстановления
func SetRenameFile(fn func(oldpath, newpath string) error) func() {
	prev := renameFile
	renameFile = fn
	return func() { renameFile = prev }
}
