package database

// Statements run one by one so the DSN does not need multiStatements.
var schema = []string{
	`
CREATE TABLE IF NOT EXISTS users (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    phone VARCHAR(32) NOT NULL UNIQUE,
    email VARCHAR(255),
    subscription_start DATETIME NULL,
    subscription_end DATETIME NULL,
    free_uses INT NOT NULL DEFAULT 3,
    daily_uses INT NOT NULL DEFAULT 0,
    last_use DATE NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`,
	`
CREATE TABLE IF NOT EXISTS creations (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    type VARCHAR(32) NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_creations_user_created (user_id, created_at),
    FOREIGN KEY (user_id) REFERENCES users(id)
)`,
}
