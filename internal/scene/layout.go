package scene

import "math"

// 房间几何参数（与楼层渲染保持一致）
const (
	RoomSize       = 8.0
	BedsPerRoom    = 2
	BedOffsetX     = 2.5
	BedOffsetZ     = -1.0
	BedHeight      = 0.1
	PanelElevation = 1.2
)

// Slot 住户面板在场景中的位置
type Slot struct {
	Room int
	Bed  int
	X    float64
	Y    float64
	Z    float64
}

// Grid 房间网格尺寸
type Grid struct {
	Columns int
	Rows    int
}

// GridFor 根据住户数推导房间网格：每间两张床，列数取接近正方形
// 8 名住户对应 2x2 网格
func GridFor(occupants int) Grid {
	if occupants <= 0 {
		return Grid{}
	}
	rooms := (occupants + BedsPerRoom - 1) / BedsPerRoom
	cols := int(math.Ceil(math.Sqrt(float64(rooms))))
	rows := (rooms + cols - 1) / cols
	return Grid{Columns: cols, Rows: rows}
}

// Layout 按名册顺序为每名住户分配槽位
// 房间按列优先遍历（先 z 后 x），网格以原点为中心
func Layout(occupants int) []Slot {
	grid := GridFor(occupants)
	slots := make([]Slot, 0, occupants)

	originX := float64(grid.Columns-1) * RoomSize / 2
	originZ := float64(grid.Rows-1) * RoomSize / 2

	for i := 0; i < occupants; i++ {
		room := i / BedsPerRoom
		bed := i % BedsPerRoom
		col := room / grid.Rows
		row := room % grid.Rows

		x := float64(col)*RoomSize - originX
		z := float64(row)*RoomSize - originZ

		bedX := x - BedOffsetX
		if bed == 1 {
			bedX = x + BedOffsetX
		}

		slots = append(slots, Slot{
			Room: room,
			Bed:  bed,
			X:    bedX,
			Y:    BedHeight + PanelElevation,
			Z:    z + BedOffsetZ,
		})
	}
	return slots
}
