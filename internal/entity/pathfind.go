package entity

import "container/heap"

// GridPoint - клетка сетки проходимости
type GridPoint struct {
	X, Y int
}

type pathNode struct {
	p     GridPoint
	g, f  int
	index int
}

type openSet []*pathNode

func (o openSet) Len() int { return len(o) }
func (o openSet) Less(i, j int) bool {
	if o[i].f == o[j].f {
		return o[i].g > o[j].g
	}
	return o[i].f < o[j].f
}
func (o openSet) Swap(i, j int) {
	o[i], o[j] = o[j], o[i]
	o[i].index = i
	o[j].index = j
}
func (o *openSet) Push(x any) {
	n := x.(*pathNode)
	n.index = len(*o)
	*o = append(*o, n)
}
func (o *openSet) Pop() any {
	old := *o
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*o = old[:len(old)-1]
	return n
}

func manhattan(a, b GridPoint) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

var neighbours = [4]GridPoint{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// FindPath ищет путь A* по 4-связной сетке grid[y][x] (1 - проходимо).
// Путь включает начальную и конечную клетки. Стартовая клетка может быть непроходимой.
// Возвращает nil, если пути нет или просмотрено больше limit узлов.
func FindPath(grid [][]uint8, from, to GridPoint, limit int) []GridPoint {
	h := len(grid)
	if h == 0 {
		return nil
	}
	w := len(grid[0])
	inside := func(p GridPoint) bool { return p.X >= 0 && p.Y >= 0 && p.X < w && p.Y < h }
	if !inside(from) || !inside(to) || grid[to.Y][to.X] == 0 {
		return nil
	}
	if from == to {
		return []GridPoint{from}
	}
	if limit <= 0 {
		limit = w * h
	}

	came := make(map[GridPoint]GridPoint)
	best := map[GridPoint]int{from: 0}
	closed := make(map[GridPoint]bool)

	open := &openSet{}
	heap.Push(open, &pathNode{p: from, f: manhattan(from, to)})

	visited := 0
	for open.Len() > 0 {
		cur := heap.Pop(open).(*pathNode)
		if closed[cur.p] {
			continue
		}
		if cur.p == to {
			return rebuild(came, from, to)
		}
		closed[cur.p] = true
		visited++
		if visited > limit {
			return nil
		}

		for _, d := range neighbours {
			np := GridPoint{cur.p.X + d.X, cur.p.Y + d.Y}
			if !inside(np) || grid[np.Y][np.X] == 0 || closed[np] {
				continue
			}
			g := cur.g + 1
			if old, ok := best[np]; ok && old <= g {
				continue
			}
			best[np] = g
			came[np] = cur.p
			heap.Push(open, &pathNode{p: np, g: g, f: g + manhattan(np, to)})
		}
	}
	return nil
}

func rebuild(came map[GridPoint]GridPoint, from, to GridPoint) []GridPoint {
	path := []GridPoint{to}
	for p := to; p != from; {
		p = came[p]
		path = append(path, p)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
