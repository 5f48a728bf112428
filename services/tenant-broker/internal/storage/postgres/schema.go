package postgres

// BaselineSchema начальная схема базы арендатора в порядке создания.
// services ссылается на categories, поэтому порядок важен. Команды повторяемы:
// после прерванной подготовки таблицы уже могут существовать.
var BaselineSchema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		phone VARCHAR(450) NOT NULL,
		name  TEXT         NOT NULL,
		CONSTRAINT pk_customers PRIMARY KEY (phone)
	)`,

	`CREATE TABLE IF NOT EXISTS employees (
		id       VARCHAR(450) NOT NULL,
		name     TEXT         NULL,
		phone    TEXT         NULL,
		password TEXT         NULL,
		CONSTRAINT pk_employees PRIMARY KEY (id)
	)`,

	`CREATE TABLE IF NOT EXISTS categories (
		id    VARCHAR(450) NOT NULL,
		name  TEXT         NOT NULL,
		image TEXT         NULL,
		CONSTRAINT pk_categories PRIMARY KEY (id)
	)`,

	`CREATE TABLE IF NOT EXISTS services (
		id          VARCHAR(450)   NOT NULL,
		category_id VARCHAR(450)   NOT NULL,
		name        TEXT           NOT NULL,
		price       NUMERIC(18, 2) NOT NULL,
		image       TEXT           NULL,
		CONSTRAINT pk_services PRIMARY KEY (id),
		CONSTRAINT fk_services_categories_category_id FOREIGN KEY (category_id)
			REFERENCES categories (id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id               VARCHAR(450)   NOT NULL,
		customer_phone   TEXT           NOT NULL,
		customer_name    TEXT           NOT NULL,
		employee_ids     TEXT           NOT NULL,
		employee_names   TEXT           NOT NULL,
		service_ids      TEXT           NOT NULL,
		service_names    TEXT           NOT NULL,
		total_price      NUMERIC(18, 2) NOT NULL,
		discount_percent NUMERIC(18, 2) NOT NULL,
		tip              NUMERIC(18, 2) NOT NULL DEFAULT 0.0,
		created_at       TIMESTAMP      NOT NULL,
		CONSTRAINT pk_orders PRIMARY KEY (id)
	)`,

	// Таблица и ее единственная строка создаются одной командой
	`CREATE TABLE IF NOT EXISTS information (
		id         INTEGER GENERATED ALWAYS AS IDENTITY,
		salon_name VARCHAR(200) NULL DEFAULT '',
		address    VARCHAR(500) NULL DEFAULT '',
		phone      VARCHAR(20)  NULL DEFAULT '',
		email      VARCHAR(100) NULL DEFAULT '',
		website    VARCHAR(200) NULL DEFAULT '',
		facebook   VARCHAR(200) NULL DEFAULT '',
		instagram  VARCHAR(200) NULL DEFAULT '',
		zalo       VARCHAR(200) NULL DEFAULT '',
		logo       TEXT         NULL DEFAULT '',
		qr_code    TEXT         NULL DEFAULT '',
		created_at TIMESTAMP    NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP    NOT NULL DEFAULT NOW(),
		CONSTRAINT pk_information PRIMARY KEY (id)
	);
	INSERT INTO information (salon_name)
		SELECT '' WHERE NOT EXISTS (SELECT 1 FROM information)`,
}
