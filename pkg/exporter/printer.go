package exporter

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"snapvault/pkg/core"
	"snapvault/pkg/types"
)

// PrintObject 以人类可读的方式输出对象
// blob 原样输出内容，tree 和 commit 格式化后输出
func (e *Exporter) PrintObject(ctx context.Context, hash types.Hash, w io.Writer) error {
	kind, data, err := e.db.Read(ctx, hash)
	if err != nil {
		return err
	}

	ok, err := PrintStructure(kind, data, w)
	if err != nil {
		return err
	}
	if !ok {
		_, err = w.Write(data)
	}
	return err
}

// PrintStructure 解析并打印结构化对象 (Commit/Tree)
// 如果是 blob，返回 false，由调用者决定如何展示
func PrintStructure(kind core.ObjectType, data []byte, w io.Writer) (bool, error) {
	switch kind {
	case core.TypeCommit:
		return true, printCommit(data, w)
	case core.TypeTree:
		return true, printTree(data, w)
	default:
		return false, nil
	}
}

func printCommit(data []byte, w io.Writer) error {
	c, err := core.ParseCommit(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Type:    Commit\n")
	fmt.Fprintf(w, "Tree:    %s\n", c.Tree)
	if c.HasParent() {
		fmt.Fprintf(w, "Parent:  %s\n", c.Parent)
	}
	fmt.Fprintf(w, "\n%s\n", c.Text())
	return nil
}

func printTree(data []byte, w io.Writer) error {
	t, err := core.ParseTree(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Type: Tree\n\n")

	// 模拟 git ls-tree 的输出格式
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "TYPE\tHASH\tNAME\n")
	for _, entry := range t.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", entry.Type, entry.Hash.Short(), entry.Name)
	}
	return tw.Flush()
}
