package netmock

//go:generate go tool mockgen -destination=conn.go -package=netmock net Conn
