package vec

import "math"

// Quat кватернион поворота (W, X, Y, Z)
type Quat struct {
	W, X, Y, Z float64
}

// Identity нулевой поворот
var Identity = Quat{W: 1}

// YawTowards возвращает поворот вокруг оси Y, направляющий +Z из from в to.
// Вертикальная составляющая игнорируется.
func YawTowards(from, to Vec3) Quat {
	dx := to.X - from.X
	dz := to.Z - from.Z
	if dx == 0 && dz == 0 {
		return Identity
	}
	half := math.Atan2(dx, dz) / 2
	return Quat{W: math.Cos(half), Y: math.Sin(half)}
}

// Rotate поворачивает вектор кватернионом
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{X: q.X, Y: q.Y, Z: q.Z}
	// v' = v + 2w(u×v) + 2u×(u×v)
	t := cross(u, v).Mul(2)
	return v.Add(t.Mul(q.W)).Add(cross(u, t))
}

// Forward направление +Z после поворота
func (q Quat) Forward() Vec3 {
	return q.Rotate(Vec3{Z: 1})
}

func cross(a, b Vec3) Vec3 {
	return Vec3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}
